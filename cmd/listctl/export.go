package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/service/category"
)

// filterFlags are the export filters shared by export and remote export.
type filterFlags struct {
	category           string
	domain             string
	valid              string
	includeSuppressed  bool
	includeDomainUnsub bool
	format             string
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.category, "category", "", "only this category (slug or id)")
	fs.StringVar(&f.domain, "domain", "", "only addresses at this domain")
	fs.StringVar(&f.valid, "valid", "all", "all, valid or invalid")
	fs.BoolVar(&f.includeSuppressed, "include-suppressed", false, "keep globally suppressed addresses")
	fs.BoolVar(&f.includeDomainUnsub, "include-domain-unsubscribes", false, "keep addresses at suppressed domains")
	fs.StringVarP(&f.format, "format", "f", "csv", "csv, txt or json")
}

// build turns the flags into a filter. categoryID is the resolved
// --category, or 0.
func (f *filterFlags) build(categoryID int64) (domain.ExportFormat, export.Filter, error) {
	format, ok := export.ParseFormat(f.format)
	if !ok {
		return "", export.Filter{}, fmt.Errorf("unknown format %q (want csv, txt or json)", f.format)
	}

	filter := export.DefaultFilter()
	filter.CategoryID = categoryID
	filter.Domain = datanorm.NormalizeDomain(f.domain)
	switch v := domain.ValidityFilter(f.valid); v {
	case domain.ValidityAll, domain.ValidityValid, domain.ValidityInvalid:
		filter.Valid = v
	default:
		return "", export.Filter{}, fmt.Errorf("--valid must be all, valid or invalid, got %q", f.valid)
	}
	filter.ExcludeGlobalSuppression = !f.includeSuppressed
	filter.ExcludeDomainUnsubscribes = !f.includeDomainUnsub
	return format, filter, nil
}

// createOutput opens path for writing, or stdout for "" and "-".
func createOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func newExportCmd() *cobra.Command {
	var (
		flags   filterFlags
		outPath string
		count   bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export canonical emails, newest first",
		Long: `Stream canonical emails matching the filters to stdout or a file.
Globally suppressed addresses and addresses at suppressed domains are left
out unless asked for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var categoryID int64
			if flags.category != "" {
				c, err := category.NewService(a.Categories).Resolve(ctx, flags.category)
				if err != nil {
					return fmt.Errorf("category %q: %w", flags.category, err)
				}
				categoryID = c.ID
			}
			format, filter, err := flags.build(categoryID)
			if err != nil {
				return err
			}

			streamer := export.NewStreamer(a.DB, a.Config.Export.PageSize)
			if count {
				n, err := streamer.Count(ctx, filter)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}

			out, closeOut, err := createOutput(cmd, outPath)
			if err != nil {
				return err
			}
			w, err := export.NewWriter(format, out)
			if err != nil {
				closeOut()
				return err
			}

			n, err := streamer.Stream(ctx, filter, w.Write)
			if err == nil {
				err = w.Flush()
			}
			if cerr := closeOut(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("export stopped after %d rows: %w", n, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rows\n", n)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&count, "count", false, "print the number of matching rows and exit")
	return cmd
}
