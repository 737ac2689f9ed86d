package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/events"
)

const (
	wsWriteWait   = 10 * time.Second
	wsRequestWait = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsEmitter writes every event as one text message.
type wsEmitter struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	now      func() time.Time
	terminal bool
}

func (e *wsEmitter) Emit(kind events.Kind, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	if err := e.conn.WriteJSON(events.New(kind, data, e.now())); err != nil {
		return err
	}
	if kind.Terminal() {
		e.terminal = true
	}
	return nil
}

func (e *wsEmitter) sentTerminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

func (s *Server) handleAnalyzeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(MaxRequestBytes)
	emit := &wsEmitter{conn: conn, now: time.Now}

	req, err := readWSRequest(conn)
	if err != nil {
		_ = emit.Emit(events.KindError, map[string]any(analysis.Failure(err.Error())))
		s.closeWS(conn)
		return
	}
	req.Stream = true

	ctx, cancel := s.analysisContext(r.Context())
	defer cancel()

	res := s.analyzer.Analyze(ctx, req, emit)

	// Failures decided before streaming starts produce no event.
	if !emit.sentTerminal() {
		if res.Success() {
			_ = emit.Emit(events.KindComplete, map[string]any(res))
		} else {
			_ = emit.Emit(events.KindError, map[string]any(res))
		}
	}
	s.closeWS(conn)
}

func readWSRequest(conn *websocket.Conn) (analysis.Request, error) {
	if err := conn.SetReadDeadline(time.Now().Add(wsRequestWait)); err != nil {
		return analysis.Request{}, err
	}
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return analysis.Request{}, err
	}
	if msgType != websocket.TextMessage {
		return analysis.Request{}, errors.New("request must be a text message")
	}
	return analysis.ParseRequest(data)
}

func (s *Server) closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
		s.logger.Debug("websocket close failed", zap.Error(err))
	}
}
