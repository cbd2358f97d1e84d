// Package runner executes generated Go snippets inside a yaegi
// interpreter. The snippet sees a fixed virtual package carrying the
// injected environment, most importantly the query router's dispatch
// function, so generated code can issue SQL without knowing the backend.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/fault"
)

const (
	// EnvPackage is the import path generated code uses to reach the
	// injected environment.
	EnvPackage = "fathom/data"

	// QueryFuncName is the fixed name the router dispatch function is
	// bound under.
	QueryFuncName = "ExecuteSQLQuery"

	// EntryFuncName is the function every snippet must define.
	EntryFuncName = "Run"
)

// QueryFunc is the dispatch signature injected into the environment.
type QueryFunc func(sql string) (*datasource.QueryResult, error)

// Environment maps names to values exposed to the snippet through
// EnvPackage. Values must be plain Go values or funcs.
type Environment map[string]any

// Result is the structured outcome of running a snippet: the value the
// snippet's Run function returned.
type Result struct {
	Value map[string]any
}

// Runner executes snippets in-process. It is stateless; a fresh
// interpreter is built per call so no state leaks between attempts.
type Runner struct {
	log             *slog.Logger
	allowedPackages map[string]bool
}

// New creates a Runner with the default import whitelist.
func New(log *slog.Logger) *Runner {
	return &Runner{
		log: log,
		allowedPackages: map[string]bool{
			EnvPackage: true,

			"errors":          true,
			"fmt":             true,
			"math":            true,
			"regexp":          true,
			"sort":            true,
			"strconv":         true,
			"strings":         true,
			"time":            true,
			"encoding/json":   true,
			"encoding/csv":    true,
			"bytes":           true,
			"slices":          true,
			"maps":            true,
			// os, os/exec, net, net/http, syscall and unsafe stay blocked.
		},
	}
}

// Run evaluates the snippet with the given environment and calls its Run
// function. Failures carry the interpreter's error text or the recovered
// panic trace; nothing is swallowed here, recovery is the caller's loop.
func (r *Runner) Run(ctx context.Context, code string, env Environment) (*Result, error) {
	if err := r.validateImports(code); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fault.Wrap(fault.KindExecution, err, "failed to load stdlib symbols")
	}
	if err := i.Use(exportEnvironment(env)); err != nil {
		return nil, fault.Wrap(fault.KindExecution, err, "failed to inject environment")
	}

	if _, err := i.Eval(wrapCode(code)); err != nil {
		return nil, fault.Wrap(fault.KindExecution, err, "snippet evaluation failed").WithTrace(err.Error())
	}

	entry, err := i.Eval("main." + EntryFuncName)
	if err != nil {
		return nil, fault.Wrap(fault.KindExecution, err, "%s function not found", EntryFuncName).WithTrace(err.Error())
	}
	fn, ok := entry.Interface().(func() (map[string]any, error))
	if !ok {
		return nil, fault.New(fault.KindExecution,
			"%s has wrong signature (want func() (map[string]any, error))", EntryFuncName)
	}

	type outcome struct {
		value map[string]any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				trace := fmt.Sprintf("panic: %v\n\n%s", rec, debug.Stack())
				done <- outcome{err: fault.New(fault.KindExecution, "snippet panicked: %v", rec).WithTrace(trace)}
			}
		}()
		value, err := fn()
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if fault.KindOf(out.err) != fault.KindUnknown {
				return nil, out.err
			}
			return nil, fault.Wrap(fault.KindExecution, out.err, "snippet returned error").WithTrace(out.err.Error())
		}
		if out.value == nil {
			return nil, fault.New(fault.KindExecution, "snippet returned no result")
		}
		return &Result{Value: out.value}, nil
	case <-ctx.Done():
		return nil, fault.Wrap(fault.KindExecution, ctx.Err(), "snippet execution cancelled")
	}
}

// validateImports rejects snippets importing anything outside the
// whitelist.
func (r *Runner) validateImports(code string) error {
	var forbidden []string
	for _, pkg := range parseImports(code) {
		if !r.allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fault.New(fault.KindExecution, "forbidden imports: %v", forbidden)
	}
	return nil
}

func parseImports(code string) []string {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if pkg := unquoteImport(trimmed); pkg != "" {
				imports = append(imports, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			if pkg := unquoteImport(strings.TrimPrefix(trimmed, "import ")); pkg != "" {
				imports = append(imports, pkg)
			}
		}
	}
	return imports
}

func unquoteImport(s string) string {
	s = strings.TrimSpace(s)
	// Drop an alias if present.
	if idx := strings.IndexByte(s, '"'); idx > 0 {
		s = s[idx:]
	}
	s = strings.Trim(s, `"`)
	if s == "" || strings.HasPrefix(s, "//") {
		return ""
	}
	return s
}

func wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}

// exportEnvironment builds the yaegi symbol table for EnvPackage. The
// QueryResult type rides along so snippets can name it.
func exportEnvironment(env Environment) interp.Exports {
	symbols := make(map[string]reflect.Value, len(env)+1)
	for name, value := range env {
		symbols[name] = reflect.ValueOf(value)
	}
	symbols["QueryResult"] = reflect.ValueOf((*datasource.QueryResult)(nil))
	return interp.Exports{
		EnvPackage + "/data": symbols,
	}
}
