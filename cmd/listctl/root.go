package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignite/listvault/internal/app"
	"github.com/ignite/listvault/internal/config"
)

var configPath string

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "listctl",
		Short: "Administer listvault categories, imports, exports and suppressions",
		Long: `listctl manages a listvault installation.

Most subcommands talk to the database named in the config file (or
DATABASE_URL). The remote subcommands go through a running API server
instead.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "listctl version %s\n" .Version}}`)
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to the YAML config file (empty for defaults)")

	root.AddCommand(newCategoriesCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newSuppressCmd())
	root.AddCommand(newRemoteCmd())
	return root
}

func execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(version).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// openApp loads the config and connects to the database and storage.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app.ConfigureLogging(cfg.Log)
	return app.Open(ctx, cfg)
}
