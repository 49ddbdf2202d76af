package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/listvault/internal/apiclient"
	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
)

func defaultServer() string {
	if v := os.Getenv("LISTVAULT_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// resolveRemoteCategory accepts an id or a slug.
func resolveRemoteCategory(ctx context.Context, c *apiclient.Client, ref string) (int64, error) {
	if ref == "" {
		return 0, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	cats, err := c.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	slug := datanorm.Slugify(ref)
	for _, cat := range cats {
		if cat.Slug == slug {
			return cat.ID, nil
		}
	}
	return 0, fmt.Errorf("category %q not found", ref)
}

func newRemoteCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Work through a running listvault API server",
	}
	cmd.PersistentFlags().StringVar(&server, "server", defaultServer(), "API base URL (env LISTVAULT_URL)")
	client := func() *apiclient.Client { return apiclient.New(server, nil) }

	categories := &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := client().ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSLUG\tNAME")
			for _, c := range cats {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Slug, c.Name)
			}
			return tw.Flush()
		},
	}

	var uploadCategory string
	upload := &cobra.Command{
		Use:   "upload --category SLUG FILE",
		Short: "Upload a file for import; a worker processes it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			id, err := resolveRemoteCategory(cmd.Context(), c, uploadCategory)
			if err != nil {
				return err
			}
			if id == 0 {
				return errors.New("--category is required")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			b, err := c.Upload(cmd.Context(), id, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued batch %d\n", b.ID)
			return nil
		},
	}
	upload.Flags().StringVar(&uploadCategory, "category", "", "target category slug or id")

	var watch time.Duration
	batch := &cobra.Command{
		Use:   "batch ID",
		Short: "Show an import batch, optionally until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid batch id %q", args[0])
			}
			c := client()
			for {
				b, err := c.GetBatch(cmd.Context(), id)
				if err != nil {
					return err
				}
				printBatch(cmd, b)
				if watch <= 0 || b.Status.Terminal() {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(watch):
				}
			}
		},
	}
	batch.Flags().DurationVar(&watch, "watch", 0, "poll at this interval until the batch completes or fails")

	var (
		flags   filterFlags
		outPath string
	)
	exp := &cobra.Command{
		Use:   "export",
		Short: "Run an export job on the server and download the file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client()
			categoryID, err := resolveRemoteCategory(ctx, c, flags.category)
			if err != nil {
				return err
			}
			format, filter, err := flags.build(categoryID)
			if err != nil {
				return err
			}

			job, err := c.StartExport(ctx, format, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Export job %s queued\n", job.PublicID)

			job, err = c.WaitExport(ctx, job.PublicID, time.Second)
			if err != nil {
				return err
			}
			if job.Status == domain.ExportFailed {
				return fmt.Errorf("export job %s failed: %s", job.PublicID, job.ErrorMessage)
			}

			out, closeOut, err := createOutput(cmd, outPath)
			if err != nil {
				return err
			}
			_, err = c.DownloadExport(ctx, job.PublicID, out)
			if cerr := closeOut(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rows\n", job.RowCount)
			return nil
		},
	}
	flags.register(exp.Flags())
	exp.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout")

	check := &cobra.Command{
		Use:   "check EMAIL",
		Short: "Tell whether importing an address now would suppress it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().CheckSuppression(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case !res.Valid:
				fmt.Fprintf(out, "%s: invalid (%s)\n", res.Email, res.InvalidReason)
			case res.Suppressed:
				fmt.Fprintf(out, "%s: suppressed (%s)\n", res.Email, res.Scope)
			default:
				fmt.Fprintf(out, "%s: not suppressed\n", res.Email)
			}
			return nil
		},
	}

	cmd.AddCommand(categories, upload, batch, exp, check)
	return cmd
}

func printBatch(cmd *cobra.Command, b *apiclient.Batch) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %d (category %d): %s\n", b.ID, b.CategoryID, b.Status)
	if b.Progress != nil && !b.Status.Terminal() {
		fmt.Fprintf(out, "  %s %d/%d (%.0f%%)\n", b.Progress.Phase, b.Progress.Processed, b.Progress.Total, b.Progress.Percent())
	}
	if b.Status == domain.BatchCompleted {
		c := b.Counters
		fmt.Fprintf(out, "  %d rows, %d inserted, %d duplicate, %d suppressed, %d invalid\n",
			c.Total, c.Inserted, c.Duplicate, c.Suppressed, c.Invalid)
	}
	if b.ErrorMessage != "" {
		fmt.Fprintf(out, "  error: %s\n", b.ErrorMessage)
	}
}
