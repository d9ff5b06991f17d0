// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"github.com/spf13/cobra"

	"github.com/raibid-labs/cfgsync/internal/runner"
)

// NewSyncCommand returns the `cfgsync sync` command.
func NewSyncCommand(g *globalOptions) *cobra.Command {
	o := &pipelineOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Validate repositories and open pull requests fixing addressable errors",
		Long: `sync runs validate and, for every repository with a missing configuration,
a foreign extends reference or a missing mandatory integration, commits the
minimal fix on a new branch and opens a pull request. An open pull request
from an earlier run is reused. Default branches are never pushed to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, g, o, runner.ModeSync)
		},
	}
	addPipelineFlags(cmd, o, runner.ModeSync)
	return cmd
}
