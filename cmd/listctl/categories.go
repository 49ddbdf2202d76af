package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/listvault/internal/service/category"
)

func newCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category"},
		Short:   "Create and list categories",
	}

	var notes string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := category.NewService(a.Categories).Create(cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created category %d %q (slug %s)\n", c.ID, c.Name, c.Slug)
			return nil
		},
	}
	create.Flags().StringVar(&notes, "notes", "", "free-form notes")

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories with member counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			svc := category.NewService(a.Categories)
			cats, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSLUG\tNAME\tMEMBERS")
			for _, c := range cats {
				sum, err := svc.Summarize(cmd.Context(), c.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", c.ID, c.Slug, c.Name, sum.Members)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}
