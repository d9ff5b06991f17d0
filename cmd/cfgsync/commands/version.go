// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../commands.Version=...".
var Version = ""

// NewVersionCommand returns the `cfgsync version` command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cfgsync",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := Version
			if v == "" {
				v = os.Getenv("CFGSYNC_VERSION")
			}
			if v == "" {
				v = "0.0.0-dev"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cfgsync version %s\n", v)
		},
	}
}
