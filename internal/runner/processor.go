// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import (
	"context"

	"github.com/raibid-labs/cfgsync/internal/reporter"
)

// Processor handles one repository to completion.
type Processor interface {
	// Process never returns an error: problems are recorded on the result.
	Process(ctx context.Context, t Target) reporter.Result
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, t Target) reporter.Result

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, t Target) reporter.Result {
	return f(ctx, t)
}
