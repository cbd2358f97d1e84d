package agent

import (
	"context"
	"fmt"

	"github.com/fathomdata/fathom/pkg/codegen"
	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/metrics"
	"github.com/fathomdata/fathom/pkg/response"
	"github.com/fathomdata/fathom/pkg/runner"
)

// QueryOption adjusts a single Chat or FollowUp call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	outputType string
}

// WithOutputType requests a result of the given type for this call only,
// overriding the configured hint.
func WithOutputType(outputType string) QueryOption {
	return func(o *queryOptions) {
		o.outputType = outputType
	}
}

// ChatStream starts a new conversation and processes the query,
// reporting progress as events. The channel is unbuffered so production
// suspends until the consumer reads; it closes after the terminal event.
func (a *Agent) ChatStream(ctx context.Context, query string, opts ...QueryOption) <-chan Event {
	a.StartNewConversation()
	return a.process(ctx, query, opts)
}

// FollowUpStream processes the query within the current conversation.
func (a *Agent) FollowUpStream(ctx context.Context, query string, opts ...QueryOption) <-chan Event {
	return a.process(ctx, query, opts)
}

func (a *Agent) process(ctx context.Context, query string, opts []QueryOption) <-chan Event {
	o := queryOptions{outputType: a.cfg.OutputTypeHint}
	for _, opt := range opts {
		opt(&o)
	}
	events := make(chan Event)
	go func() {
		defer close(events)
		a.run(ctx, query, o.outputType, events)
	}()
	return events
}

func (a *Agent) run(ctx context.Context, query, outputType string, events chan<- Event) {
	a.memory.Add("user", query)

	schema, err := a.describer.Describe(ctx, a.cfg.Sources)
	if err != nil {
		a.fail(ctx, events, "", err)
		return
	}
	system := a.prompts.BuildSystem(schema, a.buildContext(ctx, query))

	gen, err := a.generateWithRetries(ctx, events, system, query, outputType)
	if err != nil {
		a.fail(ctx, events, a.LastCodeCleaned(), err)
		return
	}
	resp, code, err := a.executeWithRetries(ctx, events, system, gen.Code, outputType)
	if err != nil {
		a.fail(ctx, events, code, err)
		return
	}

	a.memory.Add("assistant", summarize(resp))
	a.emit(ctx, events, Event{Stage: StageFinalResult, Payload: resp})
}

// generateWithRetries drives the generation loop. The first successful
// attempt emits a code-generated event; each recoverable failure below
// the ceiling emits an execution-failed event, rebuilds the user prompt
// from the captured error, and tries again, emitting a code-regenerated
// event when the retry succeeds. The ceiling exhausted, the last error
// is returned unmasked.
func (a *Agent) generateWithRetries(ctx context.Context, events chan<- Event, system, query, outputType string) (*codegen.Generated, error) {
	user := query
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gen, err := a.generator.Generate(ctx, system, user)
		if err == nil {
			a.recordCode(gen)
			generated := Event{Stage: StageCodeGenerated, Payload: gen.Code}
			if attempts > 0 {
				generated.Stage = StageCodeRegenerated
				generated.Metadata = map[string]any{"attempt": attempts}
			}
			if !a.emit(ctx, events, generated) {
				return nil, ctx.Err()
			}
			return gen, nil
		}
		if !fault.Retryable(err) {
			return nil, err
		}
		attempts++
		metrics.RecordRetry("generation")
		if attempts > a.cfg.MaxRetries {
			a.log.Error("code generation retries exhausted",
				"attempts", attempts,
				"error", err,
			)
			return nil, err
		}
		a.log.Warn("code generation failed, retrying",
			"attempt", attempts,
			"max_retries", a.cfg.MaxRetries,
			"error", err,
		)

		failed := Event{
			Stage:   StageExecutionFailed,
			Payload: formatError(err),
			Metadata: map[string]any{
				"attempt": attempts,
				"code":    a.LastCodeCleaned(),
			},
		}
		if !a.emit(ctx, events, failed) {
			return nil, ctx.Err()
		}
		user = a.correctivePrompt(a.LastCodeCleaned(), err, outputType)
	}
}

// executeWithRetries drives the execution loop. Each recoverable failure
// below the ceiling emits an execution-failed event, regenerates the
// code with a corrective prompt, emits a code-regenerated event, and
// tries again with the new code. The execution attempt counter is
// independent of the generation one.
func (a *Agent) executeWithRetries(ctx context.Context, events chan<- Event, system, code, outputType string) (*response.Response, string, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, code, err
		}
		resp, err := a.execute(ctx, code, outputType)
		if err == nil {
			return resp, code, nil
		}
		if !fault.Retryable(err) {
			return nil, code, err
		}
		attempts++
		metrics.RecordRetry("execution")
		if attempts > a.cfg.MaxRetries {
			a.log.Error("code execution retries exhausted",
				"attempts", attempts,
				"error", err,
			)
			return nil, code, err
		}
		a.log.Warn("code execution failed, regenerating",
			"attempt", attempts,
			"max_retries", a.cfg.MaxRetries,
			"kind", fault.KindOf(err).String(),
			"error", err,
		)

		failed := Event{
			Stage:   StageExecutionFailed,
			Payload: formatError(err),
			Metadata: map[string]any{
				"attempt": attempts,
				"code":    code,
			},
		}
		if !a.emit(ctx, events, failed) {
			return nil, code, ctx.Err()
		}

		gen, rerr := a.generator.Generate(ctx, system, a.correctivePrompt(code, err, outputType))
		if rerr != nil {
			return nil, code, rerr
		}
		a.recordCode(gen)

		regenerated := Event{
			Stage:    StageCodeRegenerated,
			Payload:  gen.Code,
			Metadata: map[string]any{"attempt": attempts},
		}
		if !a.emit(ctx, events, regenerated) {
			return nil, code, ctx.Err()
		}
		code = gen.Code
	}
}

// execute runs one code version and validates its result against the
// output type hint.
func (a *Agent) execute(ctx context.Context, code, outputType string) (*response.Response, error) {
	env := runner.Environment{
		runner.QueryFuncName: runner.QueryFunc(func(sql string) (*datasource.QueryResult, error) {
			return a.router.Route(ctx, sql, a.cfg.Sources)
		}),
	}
	result, err := a.executor.Run(ctx, code, env)
	if err != nil {
		return nil, err
	}
	return response.Parse(result.Value, outputType)
}

// correctivePrompt picks the regeneration template. A wrong output type
// gets the template that restates the required type; every other
// failure gets the generic error-correction template.
func (a *Agent) correctivePrompt(code string, err error, outputType string) string {
	errText := formatError(err)
	if fault.KindOf(err) == fault.KindInvalidOutputType {
		return a.prompts.BuildCorrectOutputType(code, errText, outputType)
	}
	return a.prompts.BuildCorrectError(code, errText)
}

func (a *Agent) recordCode(gen *codegen.Generated) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastCodeGenerated = gen.Raw
	a.lastCodeCleaned = gen.Code
}

func (a *Agent) fail(ctx context.Context, events chan<- Event, code string, err error) {
	a.log.Error("query processing failed",
		"kind", fault.KindOf(err).String(),
		"error", err,
	)
	errResp := &response.ErrorResponse{
		LastCodeExecuted: code,
		Error:            formatError(err),
	}
	a.emit(ctx, events, Event{
		Stage:    StageFinalError,
		Payload:  errResp,
		Metadata: map[string]any{"error": err},
	})
}

// emit delivers one event, giving up when the context ends. Every send
// goes through here so a departed consumer never wedges the producer.
func (a *Agent) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func formatError(err error) string {
	if trace := fault.TraceOf(err); trace != "" {
		return err.Error() + "\n\n" + trace
	}
	return err.Error()
}

func summarize(resp *response.Response) string {
	switch resp.Type {
	case response.TypeDataFrame:
		if qr, ok := resp.Value.(*datasource.QueryResult); ok {
			return fmt.Sprintf("returned a table with %d rows", qr.Count)
		}
		return "returned a table"
	default:
		return fmt.Sprint(resp.Value)
	}
}
