// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raibid-labs/cfgsync/cmd/cfgsync/commands"
	"github.com/raibid-labs/cfgsync/cmd/cfgsync/internal/clierr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cfgsync:", err)
		os.Exit(clierr.ExitCodeOf(err))
	}
}
