package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/service/category"
	"github.com/ignite/listvault/internal/worker"
)

// consoleProgress prints each progress update on one rewritten line.
type consoleProgress struct {
	*worker.MemoryProgress
	out io.Writer
}

func (c consoleProgress) Update(ctx context.Context, p worker.Progress) error {
	fmt.Fprintf(c.out, "\r%-10s %d/%d (%.0f%%)", p.Phase, p.Processed, p.Total, p.Percent())
	if p.Phase == worker.PhaseCompleted || p.Phase == worker.PhaseFailed {
		fmt.Fprintln(c.out)
	}
	return c.MemoryProgress.Update(ctx, p)
}

func newImportCmd() *cobra.Command {
	var (
		categoryRef string
		asCSV       bool
	)

	cmd := &cobra.Command{
		Use:   "import --category SLUG FILE",
		Short: "Import a file of addresses into a category and process it now",
		Long: `Store FILE, queue a batch for it and run the batch in this process.
Plain text files hold one or more addresses per line; CSV files are read
column by column. The source type follows the file extension unless --csv
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if categoryRef == "" {
				return errors.New("--category is required")
			}
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			categories := category.NewService(a.Categories)
			cat, err := categories.Resolve(ctx, categoryRef)
			if err != nil {
				return fmt.Errorf("category %q: %w", categoryRef, err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			req := importer.SubmitRequest{CategoryID: cat.ID, Filename: filepath.Base(args[0]), Body: f}
			if asCSV {
				req.SourceType = domain.SourceCSV
			}
			batch, err := importer.NewSubmitter(categories, a.Batches, a.Files, nil).Submit(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Queued batch %d into %s\n", batch.ID, cat.Slug)

			progress := consoleProgress{MemoryProgress: worker.NewMemoryProgress(), out: cmd.ErrOrStderr()}
			cfg := a.Config
			runner := worker.NewImportRunner(a.Batches, a.Batches, a.Files, progress, importer.Options{
				PreviewCap:    cfg.Import.PreviewCap,
				FlushSize:     cfg.Import.FlushSize,
				ProgressEvery: cfg.Import.ProgressEvery,
			}, cfg.Worker.BatchTimeout())

			res, err := runner.Run(ctx, batch.ID)
			if errors.Is(err, importer.ErrBatchNotQueued) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Batch %d was picked up by a worker; follow it with 'listctl remote batch %d'\n", batch.ID, batch.ID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("batch %d failed: %w", batch.ID, err)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryRef, "category", "", "target category slug or id")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "read FILE as CSV regardless of its extension")
	return cmd
}

func printResult(w io.Writer, res domain.BatchResult) {
	c := res.Counters
	fmt.Fprintf(w, "Batch %d: %d rows, %d valid, %d invalid, %d inserted, %d duplicate, %d suppressed\n",
		res.BatchID, c.Total, c.Valid, c.Invalid, c.Inserted, c.Duplicate, c.Suppressed)
	if len(res.InvalidPreview) == 0 {
		return
	}

	fmt.Fprintln(w, "\nInvalid rows:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tVALUE\tREASON")
	for _, p := range res.InvalidPreview {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.RowNumber, p.Raw, p.Reason)
	}
	tw.Flush()
}
