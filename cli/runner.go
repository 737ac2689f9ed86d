// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, provider and storage setup hidden
// - Choice between in-process and isolated analysis hidden
// - Output formatting hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/bridge"
	"github.com/richinex/verity/config"
	"github.com/richinex/verity/events"
	"github.com/richinex/verity/llm"
	"github.com/richinex/verity/log"
	"github.com/richinex/verity/server"
	"github.com/richinex/verity/storage"
)

// ErrInvalidRequest is returned by Analyze when stdin is not a request.
var ErrInvalidRequest = errors.New("invalid request")

// ErrAnalysisFailed is returned by Check when no verdict was produced.
var ErrAnalysisFailed = errors.New("analysis failed")

// Options holds CLI execution options shared by every command.
type Options struct {
	Provider   string
	ConfigPath string
	Verbose    bool
}

// env bundles what a command needs once settings are resolved.
type env struct {
	settings config.Settings
	logger   *log.Logger
}

func loadEnv(opts Options) (*env, error) {
	var file config.File
	if opts.ConfigPath != "" {
		f, err := config.LoadFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		file = f
	}

	settings, err := config.NewFromFile(opts.Provider, file)
	if err != nil {
		return nil, err
	}

	levelName := settings.LogLevel
	if opts.Verbose {
		levelName = "debug"
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	return &env{settings: settings, logger: log.New(level)}, nil
}

func (e *env) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.settings.RequestTimeout > 0 {
		return context.WithTimeout(ctx, e.settings.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func createProvider(settings config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	b := providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature))
	if settings.LLM.BaseURL != "" {
		b = b.BaseURL(settings.LLM.BaseURL)
	}
	return b.APIKey(apiKey)
}

func openHistory(settings config.Settings) (*storage.SqliteStorage, error) {
	store, err := storage.OpenSqlite(settings.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func (e *env) newService(recorder analysis.Recorder) (*analysis.Service, error) {
	provider, err := createProvider(e.settings)
	if err != nil {
		return nil, err
	}
	opts := []analysis.Option{analysis.WithLogger(e.logger)}
	if recorder != nil {
		opts = append(opts, analysis.WithRecorder(recorder))
	}
	return analysis.NewService(provider, opts...)
}

// Analyze is the process entry used by the bridge: one request JSON on
// stdin, event frames and then one result line on stdout.
//
// It returns ErrInvalidRequest (after printing a failed result) only when
// no analysis could be attempted. A failed analysis is still a result.
func Analyze(ctx context.Context, stdin io.Reader, stdout io.Writer, opts Options) error {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return writeFailure(stdout, fmt.Errorf("failed to read request: %w", err))
	}
	req, err := analysis.ParseRequest(raw)
	if err != nil {
		return writeFailure(stdout, err)
	}

	e, err := loadEnv(opts)
	if err != nil {
		return writeFailure(stdout, err)
	}
	defer e.logger.Sync()

	svc, err := e.newService(nil)
	if err != nil {
		return writeFailure(stdout, err)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res := svc.Analyze(ctx, req, events.NewFrameWriter(stdout))
	return writeResult(stdout, res)
}

func writeFailure(w io.Writer, cause error) error {
	if err := writeResult(w, analysis.Failure(cause.Error())); err != nil {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, cause)
}

func writeResult(w io.Writer, res analysis.Result) error {
	line, err := events.EncodeLine(res)
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}

// CheckInput describes one interactive check.
type CheckInput struct {
	Text       string
	ImageURLs  []string
	SourceURL  string
	NoSearch   bool
	NoStream   bool
	Isolate    bool
	ShowAnswer bool
	NoHistory  bool
}

func (in CheckInput) request() analysis.Request {
	return analysis.Request{
		Text:         in.Text,
		ImageURLs:    in.ImageURLs,
		SourceURL:    in.SourceURL,
		UseWebSearch: analysis.Bool(!in.NoSearch),
		Stream:       !in.NoStream,
	}
}

// Check runs one analysis and renders it on out.
func Check(ctx context.Context, in CheckInput, out io.Writer, opts Options) error {
	e, err := loadEnv(opts)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	var recorder *storage.Recorder
	if !in.NoHistory {
		store, err := openHistory(e.settings)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = storage.NewRecorder(store)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := in.request()
	renderer := NewRenderer(out, in.ShowAnswer)

	var res analysis.Result
	if in.Isolate {
		res, err = e.checkIsolated(ctx, req, renderer, opts)
		if err != nil {
			return err
		}
		if recorder != nil {
			if err := recorder.Record(ctx, req, res); err != nil {
				e.logger.Sugar().Warnf("failed to record analysis: %v", err)
			}
		}
	} else {
		var rec analysis.Recorder
		if recorder != nil {
			rec = recorder
		}
		svc, err := e.newService(rec)
		if err != nil {
			return err
		}
		res = svc.Analyze(ctx, req, renderer)
	}

	if err := renderer.Result(res); err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%w: %s", ErrAnalysisFailed, res.ErrorMessage())
	}
	return nil
}

func (e *env) checkIsolated(ctx context.Context, req analysis.Request, emit events.Emitter, opts Options) (analysis.Result, error) {
	b, err := newBridge(e, opts)
	if err != nil {
		return nil, err
	}
	return b.Analyze(ctx, req, emit)
}

// newBridge supervises this same binary running the analyze command.
func newBridge(e *env, opts Options) (*bridge.Bridge, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	command := []string{exe, "analyze"}
	if opts.Provider != "" {
		command = append(command, "--provider", opts.Provider)
	}
	if opts.ConfigPath != "" {
		command = append(command, "--config", opts.ConfigPath)
	}

	return bridge.New(bridge.Config{
		Command:    command,
		PoolSize:   e.settings.Bridge.PoolSize,
		MaxRetries: e.settings.Bridge.MaxRetries,
		Timeout:    e.settings.Bridge.Timeout,
	}, bridge.WithLogger(e.logger))
}

// bridgeAnalyzer adapts a Bridge to server.Analyzer.
type bridgeAnalyzer struct {
	bridge   *bridge.Bridge
	recorder analysis.Recorder
	logger   *log.Logger
}

func (a *bridgeAnalyzer) Analyze(ctx context.Context, req analysis.Request, emit events.Emitter) analysis.Result {
	res, err := a.bridge.Analyze(ctx, req, emit)
	if err != nil {
		res = analysis.Failure(fmt.Sprintf("analysis failed: %v", err))
	}
	if a.recorder != nil {
		if err := a.recorder.Record(ctx, req, res); err != nil {
			a.logger.Sugar().Warnf("failed to record analysis: %v", err)
		}
	}
	return res
}

// ServeOptions configures Serve.
type ServeOptions struct {
	Addr      string
	Isolate   bool
	Ephemeral bool
}

// serveHistory opens the store Serve records into. Ephemeral history is
// kept in memory and dropped when the server stops.
func serveHistory(settings config.Settings, ephemeral bool) (storage.HistoryStorage, func() error, error) {
	if ephemeral {
		return storage.NewInMemoryStorage(), func() error { return nil }, nil
	}
	store, err := openHistory(settings)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Serve runs the HTTP API until ctx is done.
func Serve(ctx context.Context, so ServeOptions, opts Options) error {
	e, err := loadEnv(opts)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	store, closeStore, err := serveHistory(e.settings, so.Ephemeral)
	if err != nil {
		return err
	}
	defer closeStore()
	recorder := storage.NewRecorder(store)

	var analyzer server.Analyzer
	if so.Isolate {
		b, err := newBridge(e, opts)
		if err != nil {
			return err
		}
		analyzer = &bridgeAnalyzer{bridge: b, recorder: recorder, logger: e.logger}
	} else {
		svc, err := e.newService(recorder)
		if err != nil {
			return err
		}
		analyzer = svc
	}

	addr := so.Addr
	if addr == "" {
		addr = e.settings.Server.Addr
	}
	srv := server.New(analyzer, store,
		server.WithLogger(e.logger),
		server.WithRequestTimeout(e.settings.RequestTimeout),
	)
	return srv.ListenAndServe(ctx, addr)
}
