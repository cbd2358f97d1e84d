package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/runner"
)

const (
	defaultImage = "golang:1.25-alpine"

	memoryLimitBytes = 512 * 1024 * 1024
	cpuQuota         = 50000 // 0.5 CPU
	pidsLimit        = 64

	runTimeout = 2 * time.Minute
)

// queryCallPattern matches ExecuteSQLQuery calls with a literal SQL
// argument. Snippets built from the prompt contract always pass the SQL
// as a single string literal.
var queryCallPattern = regexp.MustCompile(
	`ExecuteSQLQuery\(\s*("(?:[^"\\]|\\.)*"|` + "`[^`]*`" + `)\s*\)`)

// DockerSandbox executes snippets inside a throwaway container with no
// network and hard resource limits. Queries are run host-side before the
// container starts and their results are baked into the program.
type DockerSandbox struct {
	cli   *client.Client
	image string
	log   *slog.Logger
}

// NewDockerSandbox creates a sandbox using Docker settings from the
// environment. image overrides the default runtime image when non-empty.
func NewDockerSandbox(log *slog.Logger, image string) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "failed to create docker client")
	}
	if image == "" {
		image = defaultImage
	}
	return &DockerSandbox{cli: cli, image: image, log: log}, nil
}

// Run lifts the snippet's SQL calls, executes them on the host through
// the environment's dispatch function, then runs the rewritten snippet
// in a container and parses its JSON output.
func (s *DockerSandbox) Run(ctx context.Context, code string, env runner.Environment) (*runner.Result, error) {
	dispatch, ok := env[runner.QueryFuncName].(runner.QueryFunc)
	if !ok {
		return nil, fault.New(fault.KindConfiguration, "environment is missing %s", runner.QueryFuncName)
	}

	queries := extractQueries(code)
	canned := make(map[string]*datasource.QueryResult, len(queries))
	for _, q := range queries {
		result, err := dispatch(q)
		if err != nil {
			return nil, err
		}
		canned[q] = result
	}

	program, err := buildProgram(code, canned)
	if err != nil {
		return nil, err
	}

	output, err := s.runContainer(ctx, program)
	if err != nil {
		return nil, err
	}

	value, err := parseOutput(output, canned)
	if err != nil {
		return nil, err
	}
	return &runner.Result{Value: value}, nil
}

// extractQueries returns the distinct literal SQL arguments in order of
// first appearance.
func extractQueries(code string) []string {
	var queries []string
	seen := make(map[string]bool)
	for _, match := range queryCallPattern.FindAllStringSubmatch(code, -1) {
		sql, err := unquote(match[1])
		if err != nil || seen[sql] {
			continue
		}
		seen[sql] = true
		queries = append(queries, sql)
	}
	return queries
}

func unquote(lit string) (string, error) {
	if strings.HasPrefix(lit, "`") {
		return strings.Trim(lit, "`"), nil
	}
	return strconv.Unquote(lit)
}

// buildProgram rewrites the snippet into a self-contained main package:
// the fathom/data import is replaced by a local shim that replays the
// canned query results, and a main function prints the Run result as
// JSON.
func buildProgram(code string, canned map[string]*datasource.QueryResult) (string, error) {
	cannedJSON, err := json.Marshal(canned)
	if err != nil {
		return "", fault.Wrap(fault.KindExecution, err, "failed to encode query results")
	}

	body := code
	body = strings.ReplaceAll(body, "package main", "")
	body, snippetImports := liftImports(body)
	body = strings.ReplaceAll(body, "data.ExecuteSQLQuery", "ExecuteSQLQuery")
	body = strings.ReplaceAll(body, "data.QueryResult", "QueryResult")

	imports := map[string]bool{"encoding/json": true, "fmt": true, "os": true}
	for _, pkg := range snippetImports {
		if pkg != runner.EnvPackage {
			imports[pkg] = true
		}
	}
	sorted := make([]string, 0, len(imports))
	for pkg := range imports {
		sorted = append(sorted, pkg)
	}
	sort.Strings(sorted)

	var sb strings.Builder
	sb.WriteString("package main\n\n")
	sb.WriteString("import (\n")
	for _, pkg := range sorted {
		sb.WriteString("\t" + strconv.Quote(pkg) + "\n")
	}
	sb.WriteString(")\n\n")
	sb.WriteString(shimSource)
	sb.WriteString("\nconst cannedResults = ")
	sb.WriteString(strconv.Quote(string(cannedJSON)))
	sb.WriteString("\n\n")
	sb.WriteString(body)
	sb.WriteString("\n\nfunc main() {\n")
	sb.WriteString("\tvalue, err := Run()\n")
	sb.WriteString("\tif err != nil {\n\t\tfmt.Fprintln(os.Stderr, err)\n\t\tos.Exit(1)\n\t}\n")
	sb.WriteString("\tout, err := json.Marshal(value)\n")
	sb.WriteString("\tif err != nil {\n\t\tfmt.Fprintln(os.Stderr, err)\n\t\tos.Exit(1)\n\t}\n")
	sb.WriteString("\tfmt.Println(string(out))\n}\n")
	return sb.String(), nil
}

// shimSource is the in-container replacement for the fathom/data
// package. It replays results the host already fetched.
const shimSource = `type QueryResult struct {
	SQL     string           ` + "`json:\"sql\"`" + `
	Columns []string         ` + "`json:\"columns\"`" + `
	Rows    []map[string]any ` + "`json:\"rows\"`" + `
	Count   int              ` + "`json:\"count\"`" + `
}

func ExecuteSQLQuery(sql string) (*QueryResult, error) {
	var canned map[string]*QueryResult
	if err := json.Unmarshal([]byte(cannedResults), &canned); err != nil {
		return nil, err
	}
	result, ok := canned[sql]
	if !ok {
		return nil, fmt.Errorf("query was not prepared: %s", sql)
	}
	return result, nil
}
`

// liftImports removes import declarations from the snippet and returns
// the imported paths so they can be merged into the generated file's
// single import block.
func liftImports(code string) (string, []string) {
	var out []string
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
			if pkg := importPath(trimmed); pkg != "" {
				imports = append(imports, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			if pkg := importPath(strings.TrimPrefix(trimmed, "import ")); pkg != "" {
				imports = append(imports, pkg)
			}
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), imports
}

func importPath(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '"'); idx > 0 {
		s = s[idx:]
	}
	s = strings.Trim(s, `"`)
	if s == "" || strings.HasPrefix(s, "//") {
		return ""
	}
	return s
}

// runContainer materializes the program, runs it with no network and
// capped resources, and returns its stdout.
func (s *DockerSandbox) runContainer(ctx context.Context, program string) (string, error) {
	workDir, err := os.MkdirTemp("", "fathom-sandbox-")
	if err != nil {
		return "", fault.Wrap(fault.KindExecution, err, "failed to create work dir")
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, "main.go"), []byte(program), 0o644); err != nil {
		return "", fault.Wrap(fault.KindExecution, err, "failed to write program")
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	config := &container.Config{
		Image:      s.image,
		WorkingDir: "/work",
		Cmd:        []string{"go", "run", "/work/main.go"},
		Env:        []string{"GOFLAGS=-mod=mod", "GO111MODULE=off", "HOME=/tmp"},
	}
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		AutoRemove:  false,
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   workDir,
			Target:   "/work",
			ReadOnly: true,
		}},
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	resp, err := s.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return "", fault.Wrap(fault.KindExecution, err, "failed to create container")
	}
	defer func() {
		removeCtx, removeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer removeCancel()
		if err := s.cli.ContainerRemove(removeCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil && s.log != nil {
			s.log.Warn("failed to remove sandbox container", "container_id", resp.ID, "error", err)
		}
	}()

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fault.Wrap(fault.KindExecution, err, "failed to start container")
	}

	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		return "", fault.Wrap(fault.KindExecution, err, "container wait failed")
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, err := s.containerLogs(ctx, resp.ID)
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = strings.TrimSpace(stdout)
		}
		return "", fault.New(fault.KindExecution, "sandboxed execution failed (exit %d)", exitCode).WithTrace(msg)
	}
	return stdout, nil
}

func (s *DockerSandbox) containerLogs(ctx context.Context, id string) (string, string, error) {
	logs, err := s.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fault.Wrap(fault.KindExecution, err, "failed to read container logs")
	}
	defer logs.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil && err != io.EOF {
		return "", "", fault.Wrap(fault.KindExecution, err, "failed to demux container logs")
	}
	return stdout.String(), stderr.String(), nil
}

// parseOutput decodes the program's JSON line and rehydrates dataframe
// values back into query results so downstream validation sees the same
// types as in-process execution.
func parseOutput(output string, canned map[string]*datasource.QueryResult) (map[string]any, error) {
	line := lastNonEmptyLine(output)
	if line == "" {
		return nil, fault.New(fault.KindExecution, "sandboxed execution produced no output")
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(line), &value); err != nil {
		return nil, fault.Wrap(fault.KindExecution, err, "failed to decode sandbox output").WithTrace(output)
	}

	if typ, _ := value["type"].(string); typ == "dataframe" {
		if frame, ok := value["value"].(map[string]any); ok {
			if sql, _ := frame["sql"].(string); sql != "" {
				if result, ok := canned[sql]; ok {
					value["value"] = result
					return value, nil
				}
			}
			value["value"] = rehydrate(frame)
		}
	}
	return value, nil
}

func rehydrate(frame map[string]any) *datasource.QueryResult {
	result := &datasource.QueryResult{}
	result.SQL, _ = frame["sql"].(string)
	if cols, ok := frame["columns"].([]any); ok {
		for _, c := range cols {
			if name, ok := c.(string); ok {
				result.Columns = append(result.Columns, name)
			}
		}
	}
	if rows, ok := frame["rows"].([]any); ok {
		for _, r := range rows {
			if row, ok := r.(map[string]any); ok {
				result.Rows = append(result.Rows, row)
			}
		}
	}
	result.Count = len(result.Rows)
	return result
}

func lastNonEmptyLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func ptr[T any](v T) *T {
	return &v
}
