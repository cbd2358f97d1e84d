// Package agent orchestrates conversational querying: it turns a
// natural-language question into generated code, executes it against the
// registered data sources, recovers from generation and execution
// failures within a bounded retry budget, and reports progress as a
// stream of stage events.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fathomdata/fathom/pkg/codegen"
	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/duck"
	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/prompts"
	"github.com/fathomdata/fathom/pkg/response"
	"github.com/fathomdata/fathom/pkg/router"
	"github.com/fathomdata/fathom/pkg/runner"
	"github.com/fathomdata/fathom/pkg/sandbox"
	"github.com/fathomdata/fathom/pkg/vectorstore"
)

// Agent owns one conversation at a time. An instance serves many
// conversations sequentially; independent instances run fully in
// parallel since they share no mutable state.
type Agent struct {
	cfg       Config
	log       *slog.Logger
	prompts   *prompts.Prompts
	generator *codegen.Generator
	router    *router.Router
	describer *datasource.Describer
	executor  sandbox.Executor
	store     vectorstore.Store
	engine    *duck.Engine
	ownEngine bool

	mu                sync.Mutex
	memory            *Memory
	conversationID    uuid.UUID
	lastCodeGenerated string
	lastCodeCleaned   string
}

// New creates an Agent from the configuration.
func New(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "invalid agent config")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	p, err := prompts.Load()
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "failed to load prompts")
	}

	engine := cfg.Engine
	ownEngine := false
	if engine == nil {
		engine, err = duck.NewEngine(log)
		if err != nil {
			return nil, err
		}
		ownEngine = true
	}

	rt, err := router.New(router.Config{Logger: log, Engine: engine})
	if err != nil {
		return nil, err
	}

	executor := cfg.Executor
	if executor == nil {
		executor = runner.New(log)
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.SchemaTTL == 0 {
		cfg.SchemaTTL = defaultSchemaTTL
	}

	return &Agent{
		cfg:            cfg,
		log:            log,
		prompts:        p,
		generator:      codegen.New(cfg.LLM, log),
		router:         rt,
		describer:      datasource.NewDescriber(log, cfg.SchemaTTL),
		executor:       executor,
		store:          cfg.Store,
		engine:         engine,
		ownEngine:      ownEngine,
		memory:         NewMemory(cfg.MemoryLimit),
		conversationID: uuid.New(),
	}, nil
}

// Close releases resources the agent created itself.
func (a *Agent) Close() error {
	a.describer.Stop()
	if a.ownEngine {
		return a.engine.Close()
	}
	return nil
}

// ConversationID identifies the active conversation.
func (a *Agent) ConversationID() uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversationID
}

// LastCodeGenerated returns the raw LLM output of the most recent
// generation.
func (a *Agent) LastCodeGenerated() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCodeGenerated
}

// LastCodeCleaned returns the extracted, validated code of the most
// recent generation.
func (a *Agent) LastCodeCleaned() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCodeCleaned
}

// StartNewConversation clears memory and any left-over generated code
// and assigns a fresh conversation ID.
func (a *Agent) StartNewConversation() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory.Clear()
	a.lastCodeGenerated = ""
	a.lastCodeCleaned = ""
	a.conversationID = uuid.New()
}

// AddMessage appends a turn to memory without triggering generation.
// Used for externally sourced assistant turns.
func (a *Agent) AddMessage(text string, isUser bool) {
	role := "assistant"
	if isUser {
		role = "user"
	}
	a.memory.Add(role, text)
}

// Train forwards example material to the retrieval store. Questions and
// codes must be both present or both absent; a mismatch fails fast with
// no partial write.
func (a *Agent) Train(ctx context.Context, questions, codes, docs []string) error {
	if a.store == nil {
		return fault.New(fault.KindConfiguration, "training requires a vector store")
	}
	if (len(questions) == 0) != (len(codes) == 0) {
		return fault.New(fault.KindConfiguration,
			"questions and codes must be provided together (%d questions, %d codes)",
			len(questions), len(codes))
	}
	if len(questions) != len(codes) {
		return fault.New(fault.KindConfiguration,
			"questions and codes must pair up (%d questions, %d codes)", len(questions), len(codes))
	}

	if len(questions) > 0 {
		if err := a.store.AddQuestionAnswers(ctx, questions, codes); err != nil {
			return fmt.Errorf("failed to store question/code pairs: %w", err)
		}
	}
	if len(docs) > 0 {
		if err := a.store.AddDocs(ctx, docs); err != nil {
			return fmt.Errorf("failed to store docs: %w", err)
		}
	}
	a.log.Info("training material stored",
		"pairs", len(questions),
		"docs", len(docs),
	)
	return nil
}

// Chat starts a new conversation and answers the query, draining the
// event stream to its terminal event.
func (a *Agent) Chat(ctx context.Context, query string, opts ...QueryOption) (*response.Response, error) {
	return a.drain(a.ChatStream(ctx, query, opts...))
}

// FollowUp answers the query within the current conversation.
func (a *Agent) FollowUp(ctx context.Context, query string, opts ...QueryOption) (*response.Response, error) {
	return a.drain(a.FollowUpStream(ctx, query, opts...))
}

func (a *Agent) drain(events <-chan Event) (*response.Response, error) {
	var last Event
	for ev := range events {
		last = ev
	}
	switch last.Stage {
	case StageFinalResult:
		if resp, ok := last.Payload.(*response.Response); ok {
			return resp, nil
		}
		return nil, fault.New(fault.KindUnknown, "final result has unexpected payload %T", last.Payload)
	case StageFinalError:
		if err, ok := last.Metadata["error"].(error); ok {
			return nil, err
		}
		return nil, fault.New(fault.KindUnknown, "query failed")
	default:
		return nil, fault.New(fault.KindUnknown, "event stream ended without a terminal event")
	}
}

// buildContext assembles prompt context: conversation history plus
// retrieved training material similar to the question.
func (a *Agent) buildContext(ctx context.Context, query string) string {
	var parts []string

	if history := a.memory.Render(); history != "" {
		parts = append(parts, "## Conversation so far\n\n"+history)
	}

	if a.store != nil {
		if pairs, err := a.store.SimilarQuestionAnswers(ctx, query, 3); err != nil {
			a.log.Warn("failed to retrieve similar examples", "error", err)
		} else if len(pairs) > 0 {
			var sb strings.Builder
			sb.WriteString("## Similar past questions\n")
			for _, qa := range pairs {
				fmt.Fprintf(&sb, "\nQuestion: %s\n```go\n%s\n```\n", qa.Question, qa.Code)
			}
			parts = append(parts, strings.TrimSpace(sb.String()))
		}

		if docs, err := a.store.SimilarDocs(ctx, query, 3); err != nil {
			a.log.Warn("failed to retrieve similar docs", "error", err)
		} else if len(docs) > 0 {
			var sb strings.Builder
			sb.WriteString("## Reference material\n")
			for _, doc := range docs {
				sb.WriteString("\n" + doc.Content + "\n")
			}
			parts = append(parts, strings.TrimSpace(sb.String()))
		}
	}

	return strings.Join(parts, "\n\n")
}
