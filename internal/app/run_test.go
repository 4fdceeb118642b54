package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/sugarpipe/internal/crawl"
	"github.com/vk/sugarpipe/internal/fsutil"
	"github.com/vk/sugarpipe/internal/hcl_adapter"
	"github.com/vk/sugarpipe/internal/testutil"
	"github.com/vk/sugarpipe/internal/toolexec"
	"github.com/vk/sugarpipe/internal/workspace"
)

// engine scripts the three external tools by command name.
type engine struct {
	graphs  int
	matches string
	trace   map[string]string
	infos   map[string]string
	rewrite error
}

func (e *engine) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	switch name {
	case "pagegraph-crawl":
		out, _ := testutil.FlagValue(args, "-o")
		for i := 0; i < e.graphs; i++ {
			path := filepath.Join(out, fmt.Sprintf("page_graph_%d.graphml", i))
			if err := os.WriteFile(path, []byte("<graphml/>"), 0o644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "pagegraph-query":
		switch args[2] {
		case "adblock_rules":
			return []byte(e.matches), nil
		case "downstream_requests":
			return []byte(e.trace[args[3]]), nil
		case "request_id_info":
			info, ok := e.infos[args[3]]
			if !ok {
				return nil, &toolexec.ExitError{Name: name, Code: 1}
			}
			return []byte(info), nil
		}
	case "sugarcoat":
		return nil, e.rewrite
	}
	return nil, fmt.Errorf("unexpected command %s %v", name, args)
}

type fixture struct {
	app    *App
	runner *testutil.FakeRunner
	root   string
	logs   *testutil.SafeBuffer
}

func newFixture(t *testing.T, e *engine, policy string) *fixture {
	t.Helper()

	dir := t.TempDir()
	binary := filepath.Join(dir, "chrome")
	require.NoError(t, os.WriteFile(binary, nil, 0o755))
	policyPath := filepath.Join(dir, "policy.json")
	if policy != "" {
		require.NoError(t, os.WriteFile(policyPath, []byte(policy), 0o644))
	}

	cfg, err := NewConfig(Config{
		BinaryPath:    binary,
		URL:           "https://news.example/",
		DwellSeconds:  30,
		Debug:         "debug",
		PolicyPath:    policyPath,
		WorkspacePath: filepath.Join(dir, "gen"),
		LogFormat:     "text",
	})
	require.NoError(t, err)

	logs := &testutil.SafeBuffer{}
	runner := &testutil.FakeRunner{RunFunc: e.run}
	loader := &hcl_adapter.Loader{Environ: func() []string { return nil }}

	t.Cleanup(func() {
		if os.Getenv("SUGARPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	return &fixture{
		app:    NewApp(logs, cfg, loader, runner),
		runner: runner,
		root:   cfg.WorkspacePath,
		logs:   logs,
	}
}

func commandNames(calls []testutil.Call) []string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return names
}

func TestRun_EndToEndScenario(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := &engine{
		graphs:  1,
		matches: `[{"requests": [["request start", "E1"]]}]`,
		trace:   map[string]string{"E1": `["R1"]`},
		infos:   map[string]string{"R1": `{"url": "http://cdn.example/track.js", "source": "var x=1;"}`},
	}
	f := newFixture(t, e, `{"policy": {"mode": "strict"}}`)

	// --- Act ---
	res, err := f.app.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, StageDone, f.app.Stage())

	files, err := fsutil.ListFiles(filepath.Join(f.root, "output"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	name := filepath.Base(files[0])
	require.Regexp(t, regexp.MustCompile(`^track-[0-9a-f-]{36}\.js$`), name)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.Equal(t, "var x=1;", string(data))

	raw, err := os.ReadFile(filepath.Join(f.root, "config.json"))
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(raw, &cfg))
	require.NotContains(t, cfg, "policy")

	key := strings.TrimSuffix(name, ".js")
	want := map[string]any{
		key: map[string]any{
			"patterns": []any{"http://cdn.example/track.js"},
			"policy":   map[string]any{"mode": "strict"},
		},
	}
	if diff := cmp.Diff(want, cfg["targets"]); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, res.Scripts, 1)
	require.Equal(t,
		[]string{"pagegraph-crawl", "pagegraph-query", "pagegraph-query", "pagegraph-query", "sugarcoat"},
		commandNames(f.runner.Calls()))
	last := f.runner.Calls()[4]
	require.Equal(t, []string{"--config", filepath.Join(f.root, "config.json"), "--ingest", "--report", "--rewrite", "--bundle"}, last.Args)
}

func TestRun_UnrelatedRequestIsSkipped(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	e := &engine{
		graphs:  1,
		matches: `[{"requests": [["request start", "E1"]]}]`,
		trace:   map[string]string{"E1": `["IMG", "R1"]`},
		infos:   map[string]string{"R1": `{"url": "http://cdn.example/a.js", "source": "a"}`},
	}
	f := newFixture(t, e, `{"policy": "default"}`)

	// --- Act ---
	res, err := f.app.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, res.Scripts, 1)
	require.Len(t, res.Config.Targets, 1)
	for key := range res.Config.Targets {
		require.True(t, strings.HasPrefix(key, "a-"), "unexpected target %s", key)
	}
}

func TestRun_MultipleGraphsShareOneIndex(t *testing.T) {
	t.Parallel()

	e := &engine{
		graphs:  2,
		matches: `[{"requests": [["request start", "E1"]]}]`,
		trace:   map[string]string{"E1": `["R1"]`},
		infos:   map[string]string{"R1": `{"url": "http://cdn.example/foo.js", "source": "f"}`},
	}
	f := newFixture(t, e, `{"policy": {}}`)

	res, err := f.app.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, res.Graphs, 2)
	require.Len(t, res.Config.Targets, 2, "same basename in two graphs must not collide")
}

func TestRun_MissingPolicyStopsBeforeCrawl(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &engine{graphs: 1}, "")

	_, err := f.app.Run(context.Background())

	var cfgErr *workspace.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *workspace.ConfigError, got %v", err)
	require.Empty(t, f.runner.Calls())
	require.Equal(t, StageFailed, f.app.Stage())
}

func TestRun_InvalidCrawlParamsFailAfterWorkspace(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &engine{graphs: 1}, `{"policy": {}}`)
	f.app.config.DwellSeconds = 0
	f.app.config.Debug = "trace"

	_, err := f.app.Run(context.Background())

	var vErr *crawl.ValidationError
	require.True(t, errors.As(err, &vErr), "expected *crawl.ValidationError, got %v", err)
	require.Contains(t, vErr.Diagnostic, "DwellSeconds must be greater than 0")
	require.Contains(t, vErr.Diagnostic, "Debug must be one of")
	require.Empty(t, f.runner.Calls())
	_, statErr := os.Stat(filepath.Join(f.root, "graphs"))
	require.NoError(t, statErr, "the workspace is prepared before crawl validation")
}

func TestRun_NoGraphsStopsPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &engine{graphs: 0}, `{"policy": {}}`)

	_, err := f.app.Run(context.Background())

	require.ErrorIs(t, err, crawl.ErrNoGraphs)
	require.Equal(t, []string{"pagegraph-crawl"}, commandNames(f.runner.Calls()))
	_, statErr := os.Stat(filepath.Join(f.root, "config.json"))
	require.True(t, os.IsNotExist(statErr), "no configuration should be assembled")
}

func TestRun_RewriteFailureIsFatal(t *testing.T) {
	t.Parallel()

	e := &engine{
		graphs:  1,
		matches: `[]`,
		rewrite: &toolexec.ExitError{Name: "sugarcoat", Code: 2, Stderr: "no targets"},
	}
	f := newFixture(t, e, `{"policy": {}}`)

	_, err := f.app.Run(context.Background())

	var exitErr *toolexec.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, StageFailed, f.app.Stage())
}

func TestRun_PolicyWithoutPolicyFieldFailsAssembly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &engine{graphs: 1, matches: `[]`}, `{"name": "demo"}`)

	_, err := f.app.Run(context.Background())

	require.ErrorContains(t, err, `no "policy" field`)
	require.NotContains(t, commandNames(f.runner.Calls()), "sugarcoat")
}

func TestHealthHandler_ReportsStage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &engine{}, `{"policy": {}}`)
	f.app.setStage(StageCrawl)

	rec := httptest.NewRecorder()
	f.app.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK stage=crawl\n", rec.Body.String())
}

func TestNewConfig_Validation(t *testing.T) {
	t.Parallel()

	base := Config{
		BinaryPath:    "chrome",
		URL:           "https://example.com",
		DwellSeconds:  30,
		Debug:         "none",
		PolicyPath:    "policy.json",
		WorkspacePath: "gen",
		LogFormat:     "text",
	}

	_, err := NewConfig(base)
	require.NoError(t, err)

	bad := base
	bad.LogFormat = "xml"
	_, err = NewConfig(bad)
	require.ErrorContains(t, err, "LogFormat")

	bad = base
	bad.HealthcheckPort = 70000
	_, err = NewConfig(bad)
	require.ErrorContains(t, err, "HealthcheckPort")

	cfg, err := NewConfig(Config{
		BinaryPath: "chrome", URL: "u", DwellSeconds: 1, Debug: "debug",
		PolicyPath: "p", WorkspacePath: "w", LogFormat: "json",
	})
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel())
}
