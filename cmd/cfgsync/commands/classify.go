// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"github.com/spf13/cobra"

	"github.com/raibid-labs/cfgsync/internal/runner"
)

// NewClassifyCommand returns the `cfgsync classify` command.
func NewClassifyCommand(g *globalOptions) *cobra.Command {
	o := &pipelineOptions{}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Report the detected type of each repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, g, o, runner.ModeClassify)
		},
	}
	addPipelineFlags(cmd, o, runner.ModeClassify)
	return cmd
}
