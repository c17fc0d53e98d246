// Package bootstrap turns the global flags into a wired application.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"voxmeter/internal/app"
	"voxmeter/internal/app/logging"
	"voxmeter/internal/config"
)

const (
	flagConfig  = "config"
	flagVerbose = "verbose"
)

// AddFlags registers the persistent flags every subcommand reads.
func AddFlags(root *cobra.Command) {
	root.PersistentFlags().StringP(flagConfig, "c", "", "YAML configuration file (${VAR} is expanded)")
	root.PersistentFlags().BoolP(flagVerbose, "V", false, "development logging")
}

// Config loads the configuration named by the --config flag.
func Config(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString(flagConfig)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool(flagVerbose); verbose {
		cfg.Log.Development = true
	}
	return cfg, nil
}

// Setup loads the configuration, builds the logger and wires the
// application. The returned cleanup closes connections and flushes logs.
func Setup(ctx context.Context, cmd *cobra.Command) (*app.App, func(), error) {
	cfg, err := Config(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	application, cleanup, err := app.InitializeApp(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return application, func() {
		cleanup()
		_ = logger.Sync()
	}, nil
}
