package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/llm"
)

// fileConfig mirrors the HCL configuration file. Every block is optional;
// missing values fall back to defaults.
//
//	listen = ":8080"
//
//	log {
//	  format = "json"
//	  level  = "info"
//	}
//
//	store {
//	  backend = "postgres"
//	  dsn     = env.DRAFTER_DSN
//	}
//
//	model {
//	  api_key = env.OPENAI_API_KEY
//	}
type fileConfig struct {
	Listen  string       `hcl:"listen,optional"`
	Tracing bool         `hcl:"tracing,optional"`
	Audit   bool         `hcl:"audit,optional"`
	Log     *logBlock    `hcl:"log,block"`
	Store   *storeBlock  `hcl:"store,block"`
	Model   *modelBlock  `hcl:"model,block"`
	Engine  *engineBlock `hcl:"engine,block"`
	Docs    *docsBlock   `hcl:"documents,block"`
}

type logBlock struct {
	Format string `hcl:"format,optional"`
	Level  string `hcl:"level,optional"`
}

type storeBlock struct {
	Backend  string `hcl:"backend,optional"`
	DSN      string `hcl:"dsn,optional"`
	Database string `hcl:"database,optional"`
	Codec    string `hcl:"codec,optional"`
}

type modelBlock struct {
	BaseURL     string   `hcl:"base_url,optional"`
	APIKey      string   `hcl:"api_key,optional"`
	Name        string   `hcl:"name,optional"`
	Temperature *float64 `hcl:"temperature,optional"`
	Timeout     string   `hcl:"timeout,optional"`
	Attempts    int      `hcl:"attempts,optional"`
	RateLimit   float64  `hcl:"rate_limit,optional"`
	Burst       int      `hcl:"burst,optional"`
}

type engineBlock struct {
	Concurrency     int     `hcl:"concurrency,optional"`
	NodeTimeout     string  `hcl:"node_timeout,optional"`
	SuspendedTTL    string  `hcl:"suspended_ttl,optional"`
	FinishedTTL     string  `hcl:"finished_ttl,optional"`
	SweepSchedule   *string `hcl:"sweep_schedule,optional"`
	ShutdownTimeout string  `hcl:"shutdown_timeout,optional"`
}

type docsBlock struct {
	Closing     string `hcl:"closing,optional"`
	NodeTimeout string `hcl:"node_timeout,optional"`
}

// Config is the resolved server configuration.
type Config struct {
	Listen    string
	Tracing   bool
	Audit     bool
	LogFormat string
	LogLevel  string

	StoreBackend string
	StoreDSN     string
	StoreDB      string
	StoreCodec   string

	ModelBaseURL     string
	ModelAPIKey      string
	ModelName        string
	ModelTemperature float64
	ModelTimeout     time.Duration
	ModelAttempts    int
	ModelRateLimit   float64
	ModelBurst       int

	Closing        string
	DocNodeTimeout time.Duration

	Drafter drafter.Config
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() Config {
	return Config{
		Listen:           ":8080",
		LogFormat:        "json",
		LogLevel:         "info",
		StoreBackend:     "memory",
		StoreDB:          "drafter",
		StoreCodec:       "msgpack",
		ModelBaseURL:     llm.DefaultBaseURL,
		ModelName:        llm.DefaultModel,
		ModelTemperature: llm.DefaultTemperature,
		ModelTimeout:     llm.DefaultTimeout,
		ModelAttempts:    llm.DefaultMaxAttempts,
		Drafter:          drafter.DefaultConfig(),
	}
}

// loadConfig reads an HCL file. The env variable exposes the process
// environment, so secrets can stay out of the file.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, cfg.validate()
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return cfg, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
	}

	var fc fileConfig
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &fc); diags.HasErrors() {
		return cfg, fmt.Errorf("failed to decode %s: %s", path, diags.Error())
	}
	if err := cfg.apply(&fc); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

func (c *Config) apply(fc *fileConfig) error {
	if fc.Listen != "" {
		c.Listen = fc.Listen
	}
	c.Tracing = fc.Tracing
	c.Audit = fc.Audit

	if l := fc.Log; l != nil {
		setString(&c.LogFormat, strings.ToLower(l.Format))
		setString(&c.LogLevel, strings.ToLower(l.Level))
	}
	if s := fc.Store; s != nil {
		setString(&c.StoreBackend, strings.ToLower(s.Backend))
		setString(&c.StoreDSN, s.DSN)
		setString(&c.StoreDB, s.Database)
		setString(&c.StoreCodec, s.Codec)
	}
	if m := fc.Model; m != nil {
		setString(&c.ModelBaseURL, m.BaseURL)
		setString(&c.ModelAPIKey, m.APIKey)
		setString(&c.ModelName, m.Name)
		if m.Temperature != nil {
			c.ModelTemperature = *m.Temperature
		}
		if err := setDuration(&c.ModelTimeout, "model.timeout", m.Timeout); err != nil {
			return err
		}
		if m.Attempts > 0 {
			c.ModelAttempts = m.Attempts
		}
		c.ModelRateLimit = m.RateLimit
		c.ModelBurst = m.Burst
	}
	if e := fc.Engine; e != nil {
		if e.Concurrency != 0 {
			c.Drafter.Concurrency = e.Concurrency
		}
		if e.SweepSchedule != nil {
			c.Drafter.SweepSchedule = *e.SweepSchedule
		}
		for _, d := range []struct {
			dst  *time.Duration
			name string
			raw  string
		}{
			{&c.Drafter.NodeTimeout, "engine.node_timeout", e.NodeTimeout},
			{&c.Drafter.SuspendedTTL, "engine.suspended_ttl", e.SuspendedTTL},
			{&c.Drafter.FinishedTTL, "engine.finished_ttl", e.FinishedTTL},
			{&c.Drafter.ShutdownTimeout, "engine.shutdown_timeout", e.ShutdownTimeout},
		} {
			if err := setDuration(d.dst, d.name, d.raw); err != nil {
				return err
			}
		}
	}
	if fc.Docs != nil {
		c.Closing = fc.Docs.Closing
		if err := setDuration(&c.DocNodeTimeout, "documents.node_timeout", fc.Docs.NodeTimeout); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be 'text' or 'json'", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", c.LogLevel)
	}
	switch c.StoreBackend {
	case "memory":
	case "postgres", "bun", "redis", "mongo":
		if c.StoreDSN == "" {
			return fmt.Errorf("store backend %q needs a dsn", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
