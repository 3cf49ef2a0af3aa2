// Command drafterd serves the document graphs over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/api"
	audithook "github.com/xraph/drafter/audit_hook"
	"github.com/xraph/drafter/backoff"
	"github.com/xraph/drafter/docgen"
	"github.com/xraph/drafter/engine"
	"github.com/xraph/drafter/llm"
	"github.com/xraph/drafter/stream"
)

// ExitError carries a process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliFlags are the parsed command-line flags.
type cliFlags struct {
	configPath string
	envFile    string
	envSet     bool
	listen     string
	check      bool
}

func parseFlags(args []string, out io.Writer) (*cliFlags, bool, error) {
	flagSet := flag.NewFlagSet("drafterd", flag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.Usage = func() {
		fmt.Fprint(out, `
drafterd - serves construction specification graphs over HTTP.

Usage:
  drafterd [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	var o cliFlags
	flagSet.StringVar(&o.configPath, "config", "", "Path to the HCL configuration file.")
	flagSet.StringVar(&o.envFile, "env-file", ".env", "Dotenv file loaded into the environment before the config is read.")
	flagSet.StringVar(&o.listen, "listen", "", "Listen address; overrides the config file.")
	flagSet.BoolVar(&o.check, "check", false, "Validate the configuration and exit.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	flagSet.Visit(func(f *flag.Flag) {
		if f.Name == "env-file" {
			o.envSet = true
		}
	})
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}
	return &o, false, nil
}

// run wires the server from flags and configuration and blocks until ctx is
// cancelled or the listener fails.
func run(ctx context.Context, out io.Writer, args []string) error {
	opts, shouldExit, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	if opts.envFile != "" {
		// The default .env is optional; a named one must exist.
		if err := godotenv.Load(opts.envFile); err != nil && (opts.envSet || !errors.Is(err, fs.ErrNotExist)) {
			return &ExitError{Code: 2, Message: fmt.Sprintf("load env file: %v", err)}
		}
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}

	if opts.check {
		fmt.Fprintf(out, "configuration ok: store=%s listen=%s model=%s\n", cfg.StoreBackend, cfg.Listen, cfg.ModelName)
		return nil
	}

	logger := newLogger(out, cfg)
	return serve(ctx, cfg, logger)
}

func newLogger(w io.Writer, cfg Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func newModel(cfg Config, logger *slog.Logger) *llm.Client {
	return llm.NewClient(
		llm.WithBaseURL(cfg.ModelBaseURL),
		llm.WithAPIKey(cfg.ModelAPIKey),
		llm.WithModel(cfg.ModelName),
		llm.WithTemperature(cfg.ModelTemperature),
		llm.WithTimeout(cfg.ModelTimeout),
		llm.WithRetry(cfg.ModelAttempts, backoff.DefaultStrategy()),
		llm.WithRateLimit(cfg.ModelRateLimit, cfg.ModelBurst),
		llm.WithClientLogger(logger.With(slog.String("component", "llm"))),
	)
}

// buildEngine assembles the drafter, its graphs and extensions on top of
// an opened store. A non-nil broker receives lifecycle events.
func buildEngine(cfg Config, st drafter.Storer, reg prometheus.Registerer, broker *stream.Broker, logger *slog.Logger) (*engine.Engine, error) {
	d, err := drafter.New(
		drafter.WithConfig(cfg.Drafter),
		drafter.WithStore(st),
		drafter.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	model := newModel(cfg, logger)
	docOpts := []docgen.Option{docgen.WithNodeTimeout(cfg.DocNodeTimeout)}
	if cfg.Closing != "" {
		docOpts = append(docOpts, docgen.WithClosing(cfg.Closing))
	}

	engOpts := []engine.Option{
		engine.WithGraph(docgen.Pliego(model, docOpts...), docgen.Generica(model, docOpts...)),
		engine.WithPrometheus(reg),
	}
	if cfg.Tracing {
		engOpts = append(engOpts, engine.WithTracerProvider(otel.GetTracerProvider()))
	}
	if broker != nil {
		engOpts = append(engOpts, engine.WithExtension(broker))
	}
	if cfg.Audit {
		engOpts = append(engOpts, engine.WithExtension(audithook.New(auditLog(logger), audithook.WithReviewTrail(), audithook.WithLogger(logger))))
	}
	return engine.Build(d, engOpts...)
}

// auditLog records audit events as structured log lines.
func auditLog(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", ev.Action),
			slog.String("resource", ev.Resource),
			slog.String("resource_id", ev.ResourceID),
			slog.String("outcome", ev.Outcome),
			slog.String("severity", ev.Severity),
			slog.Any("metadata", ev.Metadata),
		)
		return nil
	})
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	st, release, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	broker := stream.NewBroker(logger.With(slog.String("component", "stream")))
	eng, err := buildEngine(cfg, st, reg, broker, logger)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	apiOpts := []api.Option{api.WithLogger(logger), api.WithGatherer(reg), api.WithStream(broker)}
	if cfg.Tracing {
		apiOpts = append(apiOpts, api.WithTracing(otel.GetTracerProvider()))
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.New(eng, apiOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	// Open event streams end when the broker closes its subscribers.
	srv.RegisterOnShutdown(func() { _ = broker.OnShutdown(context.WithoutCancel(ctx)) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.Listen), slog.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Drafter.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", slog.String("error", err.Error()))
		}
		return eng.Stop(shutdownCtx)
	})
	return g.Wait()
}
