// Package sandbox runs generated snippets in an isolated Docker
// container. SQL calls are lifted out of the snippet and executed on the
// host, so the container needs no database access and no network.
package sandbox

import (
	"context"

	"github.com/fathomdata/fathom/pkg/runner"
)

// Executor runs a snippet with an injected environment. The in-process
// runner and the Docker sandbox both satisfy it; the agent picks one at
// configuration time.
type Executor interface {
	Run(ctx context.Context, code string, env runner.Environment) (*runner.Result, error)
}
