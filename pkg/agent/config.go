package agent

import (
	"errors"
	"log/slog"
	"time"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/duck"
	"github.com/fathomdata/fathom/pkg/llm"
	"github.com/fathomdata/fathom/pkg/sandbox"
	"github.com/fathomdata/fathom/pkg/vectorstore"
)

const (
	defaultMaxRetries = 3
	defaultSchemaTTL  = 5 * time.Minute
)

// Config carries the dependencies and policy for an Agent. It is read
// only once processing starts; concurrent Agents may share one Config.
type Config struct {
	Logger *slog.Logger

	// LLM generates and regenerates code. Required.
	LLM llm.Client

	// Sources are the tabular data sources available to queries. Names
	// must be unique.
	Sources []datasource.Source

	// Engine is the embedded analytical engine used when no source can
	// run SQL natively. Created on demand when nil.
	Engine *duck.Engine

	// Executor runs generated code. Nil selects the in-process runner;
	// a sandbox.DockerSandbox isolates execution instead.
	Executor sandbox.Executor

	// Store holds training material for few-shot retrieval. Optional,
	// but required before Train may be called.
	Store vectorstore.Store

	// MaxRetries bounds the generation and execution recovery loops
	// independently. Zero selects the default.
	MaxRetries int

	// OutputTypeHint, when set, requires results of that type and
	// triggers type-corrective regeneration on mismatch.
	OutputTypeHint string

	// MemoryLimit bounds the conversation memory. Zero selects the
	// default.
	MemoryLimit int

	// SchemaTTL bounds how long source schemas are cached. Zero selects
	// the default.
	SchemaTTL time.Duration
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.LLM == nil {
		return errors.New("LLM client is required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	seen := make(map[string]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		name := src.Name()
		if name == "" {
			return errors.New("data source name must not be empty")
		}
		if seen[name] {
			return errors.New("duplicate data source name: " + name)
		}
		seen[name] = true
	}
	return nil
}
