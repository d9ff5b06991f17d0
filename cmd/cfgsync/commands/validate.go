// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"github.com/spf13/cobra"

	"github.com/raibid-labs/cfgsync/internal/runner"
)

// NewValidateCommand returns the `cfgsync validate` command.
func NewValidateCommand(g *globalOptions) *cobra.Command {
	o := &pipelineOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Audit repositories against their effective configuration",
		Long: `validate classifies each repository, resolves its effective configuration
and runs every compliance check. Nothing is modified.

Exit codes: 0 compliant, 1 warnings with --strict, 2 errors or failures, 3 the run could not start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, g, o, runner.ModeValidate)
		},
	}
	addPipelineFlags(cmd, o, runner.ModeValidate)
	return cmd
}
