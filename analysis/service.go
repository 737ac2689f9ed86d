// Package analysis orchestrates one authenticity analysis end to end.
//
// Information Hiding:
// - Prompt and content assembly
// - Choice between the one-shot and streaming paths
// - Conversion of every fault, including panics, into a failed Result
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/verity/content"
	"github.com/richinex/verity/events"
	jsonutil "github.com/richinex/verity/internal/json"
	"github.com/richinex/verity/llm"
	"github.com/richinex/verity/log"
	"github.com/richinex/verity/prompt"
	"github.com/richinex/verity/stream"
)

// ErrNoContent is reported when a request has neither text nor images.
var ErrNoContent = errors.New("no content provided")

// SearchLimit is the result-count ceiling of the web search tool.
const SearchLimit = 10

// Recorder persists produced results.
type Recorder interface {
	Record(ctx context.Context, req Request, res Result) error
}

// Service runs analyses against one provider.
type Service struct {
	provider llm.Provider
	content  *content.Builder
	logger   *log.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRecorder persists every result through r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithContentBuilder replaces the default content builder.
func WithContentBuilder(b *content.Builder) Option {
	return func(s *Service) { s.content = b }
}

// WithClock sets the time source used in the prompt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service for provider.
func NewService(provider llm.Provider, opts ...Option) (*Service, error) {
	s := &Service{
		provider: provider,
		logger:   log.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.content == nil {
		b, err := content.NewBuilder(content.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		s.content = b
	}
	return s, nil
}

// Analyze runs one analysis and always returns a Result.
//
// In streaming mode events go to emit as chunks arrive, ending with either
// a complete event carrying the result or a single error event. A nil emit
// discards events.
func (s *Service) Analyze(ctx context.Context, req Request, emit events.Emitter) (res Result) {
	if emit == nil {
		emit = events.Discard
	}
	start := time.Now()
	logger := s.logger.With(
		zap.String("provider", s.provider.Name()),
		zap.String("model", s.provider.Model()),
		zap.Bool("stream", req.Stream),
		zap.Bool("web_search", req.WebSearch()),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("analysis panicked", zap.Any("panic", r))
			res = s.fail(logger, req, emit, fmt.Errorf("internal error: %v", r))
		}
		logger.Info("analysis finished",
			zap.Bool("success", res.Success()),
			zap.Duration("duration", time.Since(start)),
		)
		s.record(ctx, logger, req, res)
	}()

	if !req.HasContent() {
		return Failure(ErrNoContent.Error())
	}

	llmReq := s.buildRequest(req)
	logger.Info("analysis started", zap.Int("images", len(req.ImageURLs)))

	if req.Stream {
		return s.analyzeStream(ctx, logger, req, llmReq, emit)
	}
	return s.analyzeOnce(ctx, logger, req, llmReq)
}

func (s *Service) buildRequest(req Request) llm.Request {
	system := prompt.Build(prompt.Options{
		Now:       s.now(),
		SourceURL: req.SourceURL,
		WebSearch: req.WebSearch(),
	})
	parts := s.content.Build(req.Text, req.ImageURLs, req.SourceURL)

	llmReq := llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(system),
			llm.UserMessage(parts...),
		},
	}
	if req.WebSearch() {
		llmReq.WebSearch = true
		llmReq.SearchLimit = SearchLimit
		llmReq.Thinking = llm.ThinkingAuto
	}
	return llmReq
}

func (s *Service) analyzeOnce(ctx context.Context, logger *log.Logger, req Request, llmReq llm.Request) Result {
	resp, err := s.provider.Complete(ctx, llmReq)
	if err != nil {
		return s.fail(logger, req, nil, err)
	}

	res := Result(jsonutil.Extract(resp.Content))
	if jsonutil.IsRecovery(res) {
		logger.Warn("model answer was not valid JSON", zap.Int("answer_len", len(resp.Content)))
	}
	res["success"] = true
	return res
}

func (s *Service) analyzeStream(ctx context.Context, logger *log.Logger, req Request, llmReq llm.Request, emit events.Emitter) Result {
	chunks, err := s.provider.Stream(ctx, llmReq)
	if err != nil {
		return s.fail(logger, req, emit, err)
	}

	acc, err := stream.Consume(chunks, emit)
	if err != nil {
		return s.fail(logger, req, emit, err)
	}
	logger.Debug("stream consumed",
		zap.Int("chunks", acc.Chunks()),
		zap.Int("search_queries", len(acc.SearchQueries())),
	)

	res := Result(jsonutil.Extract(acc.Answer()))
	if jsonutil.IsRecovery(res) {
		logger.Warn("model answer was not valid JSON", zap.Int("answer_len", len(acc.Answer())))
	}
	res["success"] = true
	res["thinking"] = acc.Reasoning()
	res["search_queries"] = acc.SearchQueries()

	if err := emit.Emit(events.KindComplete, map[string]any(res)); err != nil {
		return s.fail(logger, req, emit, fmt.Errorf("emit %s: %w", events.KindComplete, err))
	}
	return res
}

// fail converts err into a failed result, announcing it on emit in
// streaming mode.
func (s *Service) fail(logger *log.Logger, req Request, emit events.Emitter, err error) Result {
	res := Failure(fmt.Sprintf("analysis failed: %v", err))
	logger.Error("analysis failed", zap.Error(err))
	if req.Stream && emit != nil {
		if emitErr := emit.Emit(events.KindError, map[string]any(res)); emitErr != nil {
			logger.Warn("failed to emit error event", zap.Error(emitErr))
		}
	}
	return res
}

func (s *Service) record(ctx context.Context, logger *log.Logger, req Request, res Result) {
	if s.recorder == nil {
		return
	}
	// A timed-out analysis is still recorded.
	if err := s.recorder.Record(context.WithoutCancel(ctx), req, res); err != nil {
		logger.Warn("failed to record result", zap.Error(err))
	}
}
