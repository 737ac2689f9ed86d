// Package server exposes analyses and their history over HTTP.
//
// Routes:
//
//	POST   /analyze       request JSON in, result JSON out
//	GET    /analyze/ws    first message is the request, then one message per event
//	GET    /history       newest records first, ?limit=N
//	GET    /history/{id}  one record
//	DELETE /history/{id}
//	GET    /healthz
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/events"
	"github.com/richinex/verity/log"
	"github.com/richinex/verity/storage"
)

// MaxRequestBytes bounds a request body. Inline images make requests large.
const MaxRequestBytes = 32 << 20

// DefaultHistoryLimit applies when /history has no limit parameter.
const DefaultHistoryLimit = 50

// Analyzer runs one analysis. *analysis.Service satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, emit events.Emitter) analysis.Result
}

// Server serves the HTTP API.
type Server struct {
	analyzer       Analyzer
	history        storage.HistoryStorage
	logger         *log.Logger
	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRequestTimeout bounds each analysis. Zero means no bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// New creates a server. history may be nil, in which case the history
// routes answer 404.
func New(analyzer Analyzer, history storage.HistoryStorage, opts ...Option) *Server {
	s := &Server{
		analyzer: analyzer,
		history:  history,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /analyze/ws", s.handleAnalyzeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if s.history != nil {
		mux.HandleFunc("GET /history", s.handleHistoryList)
		mux.HandleFunc("GET /history/{id}", s.handleHistoryGet)
		mux.HandleFunc("DELETE /history/{id}", s.handleHistoryDelete)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) analysisContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout > 0 {
		return context.WithTimeout(parent, s.requestTimeout)
	}
	return context.WithCancel(parent)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, analysis.Failure(fmt.Sprintf("failed to read request: %v", err)))
		return
	}
	req, err := analysis.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, analysis.Failure(err.Error()))
		return
	}
	// Events have nowhere to go on a plain response.
	req.Stream = false

	ctx, cancel := s.analysisContext(r.Context())
	defer cancel()

	res := s.analyzer.Analyze(ctx, req, nil)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("history list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("history request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
