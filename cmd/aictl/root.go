package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/perculacms/aicore/internal/app"
	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/store"
	"github.com/perculacms/aicore/internal/telemetry"
)

var version = "dev"

// cli carries the state shared by all subcommands once the config is loaded.
type cli struct {
	configPath string
	verbose    bool

	cfg      *config.Config
	logger   *slog.Logger
	logClose io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "aictl",
		Short:        "Administer the PerculaCMS AI core",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logClose != nil {
				c.logClose.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "configs/config.yaml", "path to the configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	root.AddCommand(
		newKeysCmd(c),
		newRegistryCmd(c),
		newModelsCmd(c),
		newJobsCmd(c),
		newGenerateCmd(c),
		newAgentsCmd(c),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	loader := config.NewLoader(c.configPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := loader.Load(); err != nil {
		return err
	}
	c.cfg = loader.Config()

	tcfg := c.cfg.Telemetry
	tcfg.LogFormat = "text"
	if !c.verbose {
		tcfg.LogLevel = "warn"
	}
	c.logger, c.logClose = telemetry.NewLogger(tcfg, cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	return nil
}

func (c *cli) openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, c.cfg.Database, c.logger)
}

func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.logger, app.Options{SkipRedis: true})
}
