// SPDX-License-Identifier: AGPL-3.0-or-later

/*
cfgsync - Configuration resolution and compliance sync for an organization's repositories.
It resolves each repository's layered project configuration, reports drift from the organization templates, and opens pull requests that correct it.

Copyright (C) 2026  raibid-labs

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package commands contains the Cobra commands of the cfgsync CLI.
package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/raibid-labs/cfgsync/cmd/cfgsync/internal/clierr"
	"github.com/raibid-labs/cfgsync/internal/config"
	"github.com/raibid-labs/cfgsync/internal/logging"
)

// globalOptions holds the persistent flags of the root command.
type globalOptions struct {
	configPath string
	verbose    bool
	logFormat  string
}

// NewRootCmd constructs the cfgsync root Cobra command.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "cfgsync",
		Short: "Resolve, audit and synchronize project configuration across repositories",
		Long: `cfgsync classifies every repository of an organization, resolves its effective
project configuration from the template store, reports compliance findings and
opens pull requests that fix the addressable ones.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "path to the run configuration (default ./"+config.DefaultFile+")")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format: console or json")

	cmd.AddCommand(NewClassifyCommand(g))
	cmd.AddCommand(NewValidateCommand(g))
	cmd.AddCommand(NewSyncCommand(g))
	cmd.AddCommand(NewReportCommand(g))
	cmd.AddCommand(NewTemplatesCommand(g))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// load reads the configuration, applies the logging flags and returns a
// context carrying the logger. The configuration is not validated yet so
// callers can apply their own flag overrides first.
func (g *globalOptions) load(cmd *cobra.Command) (*config.Config, context.Context, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, clierr.CannotStart(err)
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if g.verbose {
		cfg.Log.Level = zerolog.DebugLevel.String()
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return cfg, logger.WithContext(ctx), nil
}

// validate checks cfg once every override is applied.
func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return clierr.CannotStart(err)
	}
	return nil
}
