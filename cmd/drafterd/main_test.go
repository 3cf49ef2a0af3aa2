package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/drafter/api"
	"github.com/xraph/drafter/docgen"
	"github.com/xraph/drafter/store/memory"
	"github.com/xraph/drafter/stream"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRun_Help(t *testing.T) {
	out := &bytes.Buffer{}
	if err := run(context.Background(), out, []string{"-h"}); err != nil {
		t.Fatalf("run -h: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("expected usage text, got %q", out.String())
	}
}

func TestRun_ParseError(t *testing.T) {
	err := run(context.Background(), io.Discard, []string{"--not-a-flag"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
	if !strings.Contains(exitErr.Message, "flag provided but not defined") {
		t.Errorf("message = %q", exitErr.Message)
	}
}

func TestRun_Check(t *testing.T) {
	const key = "DRAFTERD_TEST_MODEL"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	envFile := writeFile(t, "test.env", key+"=gpt-test\n")
	cfgFile := writeFile(t, "drafter.hcl", `
listen = ":9090"

model {
  name = env.DRAFTERD_TEST_MODEL
}
`)

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-env-file", envFile, "-config", cfgFile, "-listen", ":7070", "-check"})
	if err != nil {
		t.Fatalf("run -check: %v", err)
	}
	got := out.String()
	for _, want := range []string{"store=memory", "listen=:7070", "model=gpt-test"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestRun_MissingEnvFile(t *testing.T) {
	err := run(context.Background(), io.Discard, []string{"-env-file", filepath.Join(t.TempDir(), "nope.env"), "-check"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "drafter.hcl", `
tracing = true
audit   = true

log {
  format = "TEXT"
  level  = "debug"
}

store {
  backend = "redis"
  dsn     = "redis://localhost:6379/0"
  codec   = "json"
}

model {
  temperature = 0
  timeout     = "30s"
  rate_limit  = 2
  burst       = 4
}

engine {
  concurrency    = 3
  suspended_ttl  = "48h"
  sweep_schedule = ""
}

documents {
  closing      = "Fin."
  node_timeout = "2m"
}
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if !cfg.Tracing || !cfg.Audit {
		t.Error("tracing and audit should be on")
	}
	if cfg.LogFormat != "text" || cfg.LogLevel != "debug" {
		t.Errorf("log = %s/%s", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.StoreBackend != "redis" || cfg.StoreCodec != "json" || cfg.StoreDB != "drafter" {
		t.Errorf("store = %+v", cfg)
	}
	if cfg.ModelTemperature != 0 || cfg.ModelTimeout != 30*time.Second || cfg.ModelRateLimit != 2 || cfg.ModelBurst != 4 {
		t.Errorf("model = %v %v %v %v", cfg.ModelTemperature, cfg.ModelTimeout, cfg.ModelRateLimit, cfg.ModelBurst)
	}
	if cfg.Drafter.Concurrency != 3 || cfg.Drafter.SuspendedTTL != 48*time.Hour {
		t.Errorf("engine = %+v", cfg.Drafter)
	}
	if cfg.Drafter.SweepSchedule != "" {
		t.Errorf("sweep schedule = %q, want disabled", cfg.Drafter.SweepSchedule)
	}
	if cfg.Drafter.FinishedTTL != 24*time.Hour {
		t.Errorf("finished ttl default lost: %v", cfg.Drafter.FinishedTTL)
	}
	if cfg.Closing != "Fin." || cfg.DocNodeTimeout != 2*time.Minute {
		t.Errorf("documents = %q %v", cfg.Closing, cfg.DocNodeTimeout)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.StoreBackend != "memory" || cfg.LogFormat != "json" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		hcl  string
		want string
	}{
		{"syntax", `listen = `, "failed to parse"},
		{"unknown attribute", `port = 80`, "failed to decode"},
		{"log level", `log { level = "loud" }`, "invalid log level"},
		{"log format", `log { format = "xml" }`, "invalid log format"},
		{"backend", `store { backend = "sqlite" }`, "unknown store backend"},
		{"missing dsn", `store { backend = "postgres" }`, "needs a dsn"},
		{"duration", `engine { node_timeout = "soon" }`, "engine.node_timeout"},
		{"missing env", `listen = env.DRAFTERD_SURELY_UNSET_VARIABLE`, "failed to decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeFile(t, "drafter.hcl", tt.hcl))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestBuildEngine_ServesDocumentGraphs(t *testing.T) {
	cfg := defaultConfig()
	cfg.Drafter.SweepSchedule = ""
	cfg.Audit = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	broker := stream.NewBroker(logger)
	eng, err := buildEngine(cfg, memory.New(), reg, broker, logger)
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	for _, name := range []string{docgen.PliegoName, docgen.GenericaName} {
		if _, ok := eng.Graphs().Get(name); !ok {
			t.Errorf("graph %s not registered", name)
		}
	}

	ts := httptest.NewServer(api.New(eng, api.WithLogger(logger), api.WithGatherer(reg), api.WithStream(broker)).Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/v1/graphs/pliego", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}
