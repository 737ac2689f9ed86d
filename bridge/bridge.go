// Package bridge runs the analyzer in a child process and supervises it.
//
// Information Hiding:
// - Process spawning, stdin/stdout plumbing and the event frame protocol
// - Concurrency limit across callers
// - Timeout, kill and retry policy
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/events"
	"github.com/richinex/verity/log"
)

// Defaults applied when a Config field is zero.
const (
	DefaultPoolSize   = 2
	DefaultMaxRetries = 3
	DefaultTimeout    = 120 * time.Second
)

// maxStderr bounds how much child stderr is kept for error messages.
const maxStderr = 8 << 10

var (
	// ErrTimeout is reported when an attempt exceeds Config.Timeout.
	ErrTimeout = errors.New("analyzer timed out")

	// ErrNoResult is reported when the child exits cleanly without printing
	// a JSON result.
	ErrNoResult = errors.New("analyzer produced no result")
)

// Config describes the child process and the supervision policy.
type Config struct {
	// Command is the analyzer argv. The request JSON is written to its stdin.
	Command []string
	// Env is appended to the parent environment.
	Env []string
	// PoolSize is the number of children allowed to run at once.
	PoolSize int
	// MaxRetries is the total number of attempts per call.
	MaxRetries int
	// Timeout bounds one attempt.
	Timeout time.Duration
}

// Bridge runs analyses through child processes.
type Bridge struct {
	cfg     Config
	slots   chan struct{}
	logger  *log.Logger
	backoff func(attempt int) time.Duration
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithBackoff replaces the delay before retry number attempt (1-based).
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(b *Bridge) { b.backoff = f }
}

// ExponentialBackoff waits 2^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// New creates a bridge. Zero Config fields take the package defaults.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("bridge: command is required")
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	b := &Bridge{
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.PoolSize),
		logger:  log.Nop(),
		backoff: ExponentialBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

// InFlight returns the number of children currently running.
func (b *Bridge) InFlight() int {
	return len(b.slots)
}

// Analyze sends req to a child analyzer and returns its result.
//
// Events the child prints are forwarded to emit while it runs. Process
// failures (non-zero exit, timeout, missing result) are retried with
// backoff; a result with success false is returned as is. A failing emit
// aborts without retry.
func (b *Bridge) Analyze(ctx context.Context, req analysis.Request, emit events.Emitter) (analysis.Result, error) {
	if emit == nil {
		emit = events.Discard
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.backoff(attempt)
			b.logger.Warn("retrying analyzer",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		res, err := b.attempt(ctx, payload, emit)
		if err == nil {
			return res, nil
		}
		var ee *emitError
		if errors.As(err, &ee) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("analyzer failed after %d attempts: %w", b.cfg.MaxRetries, lastErr)
}

type emitError struct {
	err error
}

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

func (b *Bridge) attempt(ctx context.Context, payload []byte, emit events.Emitter) (analysis.Result, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	actx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(actx, b.cfg.Command[0], b.cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), b.cfg.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = time.Second

	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	pr, pw := io.Pipe()
	cmd.Stdout = pw

	out := &outputCollector{emit: emit, logger: b.logger}
	scanned := make(chan error, 1)
	go func() {
		scanned <- out.scanner().Scan(pr)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}()

	start := time.Now()
	runErr := cmd.Run()
	pw.Close()
	scanErr := <-scanned

	b.logger.Debug("analyzer exited",
		zap.Duration("duration", time.Since(start)),
		zap.Int("events", out.events),
		zap.Error(runErr),
	)

	if out.emitErr != nil {
		return nil, &emitError{err: out.emitErr}
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, b.cfg.Timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("analyzer exited with code %d: %s", exitErr.ExitCode(), stderr.trimmed())
		}
		return nil, fmt.Errorf("failed to run analyzer: %w", runErr)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return out.result()
}

func (b *Bridge) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) release() {
	<-b.slots
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// outputCollector forwards frames and remembers the text around them.
type outputCollector struct {
	emit    events.Emitter
	logger  *log.Logger
	events  int
	emitErr error
	lines   []string
	last    string
}

func (o *outputCollector) scanner() *events.Scanner {
	return &events.Scanner{
		OnEvent: func(ev events.Event) {
			if o.emitErr != nil {
				return
			}
			o.events++
			if err := o.emit.Emit(ev.Type, ev.Data); err != nil {
				o.emitErr = fmt.Errorf("emit %s: %w", ev.Type, err)
			}
		},
		OnOutput: func(line string) {
			o.lines = append(o.lines, line)
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
				o.last = trimmed
			}
		},
		OnError: func(err error, payload string) {
			o.logger.Warn("skipping malformed event frame",
				zap.Error(err),
				zap.Int("payload_len", len(payload)),
			)
		},
	}
}

// result decodes the last JSON line, falling back to the whole output.
func (o *outputCollector) result() (analysis.Result, error) {
	raw := o.last
	if raw == "" {
		raw = strings.TrimSpace(strings.Join(o.lines, "\n"))
	}
	if raw == "" || !gjson.Valid(raw) {
		return nil, ErrNoResult
	}
	var res analysis.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil || res == nil {
		return nil, fmt.Errorf("%w: result is not a JSON object", ErrNoResult)
	}
	return res, nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) trimmed() string {
	s := strings.TrimSpace(l.buf.String())
	if s == "" {
		return "no stderr output"
	}
	return s
}
