package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/listvault/internal/domain"
	suppsvc "github.com/ignite/listvault/internal/service/suppression"
)

func newSuppressCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "suppress",
		Short: "Manage global and domain suppression entries",
	}
	cmd.PersistentFlags().StringVar(&reason, "reason", "", "manual, unsubscribe, spam_complaint or hard_bounce")

	add := func(scope domain.SuppressionScope) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			r := domain.SuppressionReason(reason)
			if !r.Known() {
				return fmt.Errorf("unknown reason %q", reason)
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			svc := suppsvc.NewService(a.Suppressions)
			var entry domain.SuppressionEntry
			if scope == domain.ScopeGlobal {
				entry, err = svc.SuppressEmail(cmd.Context(), args[0], r)
			} else {
				entry, err = svc.SuppressDomain(cmd.Context(), args[0], r)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Suppressed %s %s (%s)\n", entry.Scope, entry.Email+entry.Domain, entry.Reason)
			return nil
		}
	}

	email := &cobra.Command{
		Use:   "email ADDRESS",
		Short: "Suppress one address everywhere",
		Args:  cobra.ExactArgs(1),
		RunE:  add(domain.ScopeGlobal),
	}
	dom := &cobra.Command{
		Use:   "domain DOMAIN",
		Short: "Suppress every address at a domain",
		Args:  cobra.ExactArgs(1),
		RunE:  add(domain.ScopeDomain),
	}

	remove := &cobra.Command{
		Use:   "remove global|domain VALUE",
		Short: "Remove a suppression entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := suppsvc.NewService(a.Suppressions).Remove(cmd.Context(), domain.SuppressionScope(args[0]), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s suppression for %s\n", args[0], args[1])
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count suppression entries by scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := suppsvc.NewService(a.Suppressions).GetStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "global: %d\ndomain: %d\ntotal:  %d\n", st.Global, st.Domains, st.Total)
			return nil
		},
	}

	cmd.AddCommand(email, dom, remove, stats)
	return cmd
}
