package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/fathomdata/fathom/pkg/datasource"
)

// FileConfig is the YAML configuration file layout.
type FileConfig struct {
	LLM struct {
		Provider  string `yaml:"provider"` // anthropic or ollama
		Model     string `yaml:"model"`
		MaxTokens int64  `yaml:"max_tokens"`
		OllamaURL string `yaml:"ollama_url"`
	} `yaml:"llm"`

	Sources []SourceConfig `yaml:"sources"`

	MaxRetries  int    `yaml:"max_retries"`
	OutputType  string `yaml:"output_type"`
	StorePath   string `yaml:"store_path"`
	MetricsAddr string `yaml:"metrics_addr"`

	Sandbox struct {
		Enabled bool   `yaml:"enabled"`
		Image   string `yaml:"image"`
	} `yaml:"sandbox"`
}

// SourceConfig declares one tabular data source.
type SourceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // csv, postgres or clickhouse

	// csv
	Path string `yaml:"path"`

	// postgres
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`

	// clickhouse
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// buildSources connects the declared sources. The returned closer shuts
// down any connection pools that were opened.
func buildSources(ctx context.Context, configs []SourceConfig) ([]datasource.Source, func(), error) {
	var sources []datasource.Source
	var closers []func()
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	for _, sc := range configs {
		switch sc.Type {
		case "csv":
			sources = append(sources, datasource.NewCSVSource(sc.Name, sc.Path))

		case "postgres":
			pool, err := pgxpool.New(ctx, sc.DSN)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("failed to connect to postgres for %q: %w", sc.Name, err)
			}
			closers = append(closers, pool.Close)
			sources = append(sources, datasource.NewPostgresSource(pool, sc.Name, sc.Schema, sc.Table))

		case "clickhouse":
			conn, err := clickhouse.Open(&clickhouse.Options{
				Addr: []string{sc.Addr},
				Auth: clickhouse.Auth{
					Database: sc.Database,
					Username: sc.Username,
					Password: sc.Password,
				},
			})
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("failed to connect to clickhouse for %q: %w", sc.Name, err)
			}
			closers = append(closers, func() { _ = conn.Close() })
			sources = append(sources, datasource.NewClickHouseSource(conn, sc.Name, sc.Database, sc.Table))

		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown source type %q for %q", sc.Type, sc.Name)
		}
	}
	return sources, closeAll, nil
}
