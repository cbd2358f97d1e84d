// Package router dispatches logical SQL produced by generated code. Each
// dispatch builds a fresh table mapping from the registered sources,
// rewrites the query against it, and routes either to the embedded DuckDB
// engine or to the single query-capable source.
package router

import (
	"context"
	"log/slog"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/duck"
	"github.com/fathomdata/fathom/pkg/fault"
)

// ErrNoDataSources is returned when a dispatch happens with no sources
// registered.
var ErrNoDataSources = fault.New(fault.KindConfiguration, "no data sources registered for query execution")

// Config holds the configuration for a Router.
type Config struct {
	Logger *slog.Logger
	Engine *duck.Engine
}

func (cfg *Config) Validate() error {
	if cfg.Engine == nil {
		return fault.New(fault.KindConfiguration, "embedded engine is required")
	}
	return nil
}

// Router routes rewritten SQL to the right backend.
type Router struct {
	log    *slog.Logger
	engine *duck.Engine
}

// New creates a Router.
func New(cfg Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{log: cfg.Logger, engine: cfg.Engine}, nil
}

// Route executes a logical SQL query over the given sources. If exactly one
// source is query-capable it becomes the executor for the whole rewritten
// query; otherwise every source is registered into the embedded engine and
// the query runs there. Dispatch failures propagate; retry is the
// recovery loop's concern, not this layer's.
func (r *Router) Route(ctx context.Context, query string, sources []datasource.Source) (*datasource.QueryResult, error) {
	if len(sources) == 0 {
		return nil, ErrNoDataSources
	}

	mapping := make(map[string]string, len(sources))
	var executor datasource.NativeQuerier
	var loadables []datasource.Source

	for _, src := range sources {
		if nq, ok := src.(datasource.NativeQuerier); ok {
			if executor != nil {
				return nil, fault.New(fault.KindDispatch,
					"multiple query-capable sources (%q, %q); at most one may take part in a dispatch",
					executor.Name(), nq.Name())
			}
			executor = nq
			mapping[nq.Name()] = nq.TableExpression()
			continue
		}
		mapping[src.Name()] = src.Name()
		loadables = append(loadables, src)
	}

	rewritten, err := rewriteQuery(query, mapping)
	if err != nil {
		return nil, err
	}

	if executor != nil {
		if r.log != nil {
			r.log.Debug("router: forwarding query to native executor", "executor", executor.Name())
		}
		return executor.RunQuery(ctx, rewritten)
	}

	unlock := r.engine.Lock()
	defer unlock()

	for _, src := range loadables {
		if err := r.registerSource(ctx, src); err != nil {
			return nil, err
		}
	}

	if r.log != nil {
		r.log.Debug("router: running query on embedded engine", "tables", len(loadables))
	}
	return r.engine.Query(ctx, rewritten)
}

func (r *Router) registerSource(ctx context.Context, src datasource.Source) error {
	if fb, ok := src.(datasource.FileBacked); ok {
		return r.engine.RegisterCSV(ctx, fb.Name(), fb.Path())
	}
	loadable, ok := src.(datasource.Loadable)
	if !ok {
		return fault.New(fault.KindConfiguration, "source %q is neither query-capable nor loadable", src.Name())
	}
	table, err := loadable.Load(ctx)
	if err != nil {
		return err
	}
	return r.engine.Register(ctx, table)
}
