package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/fathomdata/fathom/pkg/agent"
	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/llm"
	"github.com/fathomdata/fathom/pkg/logger"
	"github.com/fathomdata/fathom/pkg/response"
	"github.com/fathomdata/fathom/pkg/sandbox"
	"github.com/fathomdata/fathom/pkg/vectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	configFlag := flag.String("config", "fathom.yaml", "path to the YAML configuration file")
	askFlag := flag.String("ask", "", "ask a single question and exit")
	outputTypeFlag := flag.String("output-type", "", "required result type (dataframe, number, string, plot)")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (or set METRICS_ADDR env var)")
	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(os.Stderr, *verboseFlag)

	cfg, err := loadFileConfig(*configFlag)
	if err != nil {
		return err
	}
	if *outputTypeFlag != "" {
		cfg.OutputType = *outputTypeFlag
	}
	if *metricsAddrFlag != "" {
		cfg.MetricsAddr = *metricsAddrFlag
	}
	if envMetricsAddr := os.Getenv("METRICS_ADDR"); envMetricsAddr != "" && cfg.MetricsAddr == "" {
		cfg.MetricsAddr = envMetricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	client, err := buildLLM(cfg, log)
	if err != nil {
		return err
	}

	sources, closeSources, err := buildSources(ctx, cfg.Sources)
	if err != nil {
		return err
	}
	defer closeSources()

	var store vectorstore.Store
	if cfg.StorePath != "" {
		sqliteStore, err := vectorstore.NewSQLiteStore(cfg.StorePath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	var executor sandbox.Executor
	if cfg.Sandbox.Enabled {
		executor, err = sandbox.NewDockerSandbox(log, cfg.Sandbox.Image)
		if err != nil {
			return err
		}
	}

	a, err := agent.New(agent.Config{
		Logger:         log,
		LLM:            client,
		Sources:        sources,
		Executor:       executor,
		Store:          store,
		MaxRetries:     cfg.MaxRetries,
		OutputTypeHint: cfg.OutputType,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if *askFlag != "" {
		return ask(ctx, a, *askFlag)
	}
	return repl(ctx, a)
}

func buildLLM(cfg *FileConfig, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		model := anthropic.Model(cfg.LLM.Model)
		if model == "" {
			model = anthropic.ModelClaudeSonnet4_5
		}
		return llm.NewAnthropicClient(log, model, cfg.LLM.MaxTokens), nil
	case "ollama":
		return llm.NewOllamaClient(cfg.LLM.OllamaURL, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}

// ask answers one question, streaming stage updates to stderr and the
// final answer to stdout.
func ask(ctx context.Context, a *agent.Agent, question string) error {
	for ev := range a.ChatStream(ctx, question) {
		renderEvent(ev)
		if ev.Terminal() && ev.Stage == agent.StageFinalError {
			return fmt.Errorf("query failed")
		}
	}
	return ctx.Err()
}

// repl runs an interactive conversation. The first question of a
// conversation uses chat semantics, subsequent ones are follow-ups.
func repl(ctx context.Context, a *agent.Agent) error {
	fmt.Println("fathom interactive session. Type a question, /new for a new conversation, /exit to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	first := true
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit":
			return nil
		case line == "/new":
			a.StartNewConversation()
			first = true
			fmt.Println("started a new conversation")
			continue
		}

		var events <-chan agent.Event
		if first {
			events = a.ChatStream(ctx, line)
			first = false
		} else {
			events = a.FollowUpStream(ctx, line)
		}
		for ev := range events {
			renderEvent(ev)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func renderEvent(ev agent.Event) {
	switch ev.Stage {
	case agent.StageCodeGenerated:
		fmt.Fprintln(os.Stderr, "... code generated")
	case agent.StageExecutionFailed:
		fmt.Fprintf(os.Stderr, "... execution failed (attempt %v)\n", ev.Metadata["attempt"])
	case agent.StageCodeRegenerated:
		fmt.Fprintln(os.Stderr, "... code regenerated")
	case agent.StageFinalResult:
		if resp, ok := ev.Payload.(*response.Response); ok {
			fmt.Println(resp.String())
			if resp.Type == response.TypeDataFrame {
				if qr, ok := resp.Value.(*datasource.QueryResult); ok {
					fmt.Fprintf(os.Stderr, "%d rows\n", qr.Count)
				}
			}
		}
	case agent.StageFinalError:
		if errResp, ok := ev.Payload.(*response.ErrorResponse); ok {
			fmt.Fprintln(os.Stderr, errResp.Error)
			if errResp.LastCodeExecuted != "" {
				fmt.Fprintf(os.Stderr, "last code executed:\n%s\n", errResp.LastCodeExecuted)
			}
		}
	}
}
