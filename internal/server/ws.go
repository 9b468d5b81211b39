package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BA-SupportII/BA-AI/internal/events"
	"github.com/BA-SupportII/BA-AI/internal/pipeline"
)

// maxWSMessage bounds one client frame. Requests are prompts plus
// flags; anything bigger is a client bug.
const maxWSMessage = 1 << 20

// wsFrame is one client message: a request carrying the /api/auto
// fields plus requestId, or a cancel directive for an earlier request.
type wsFrame struct {
	Type string `json:"type,omitempty"`
	pipeline.Request
}

// wsConn serializes writes to one client connection. Gorilla allows a
// single concurrent writer, and several requests may stream at once.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// handleWS runs the streaming protocol: each incoming request frame
// starts a pipeline run whose events are written back as JSON, tagged
// with the request id so clients can multiplex. Closing the socket
// cancels everything still in flight.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxWSMessage)
	client := &wsConn{conn: conn}

	defer conn.Close()
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "err", err)
			}
			return
		}

		if frame.Type == "cancel" {
			if !s.engine.Cancel(frame.RequestID) {
				s.logger.Debug("cancel for unknown request", "requestId", frame.RequestID)
			}
			continue
		}

		req := frame.Request
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveWSRequest(ctx, client, req)
		}()
	}
}

// serveWSRequest runs one pipeline request against the shared
// connection. The engine emits the terminal frame on every path it
// reaches the stream; failures before that (an empty prompt) get their
// error frame here.
func (s *Server) serveWSRequest(ctx context.Context, client *wsConn, req pipeline.Request) {
	var terminal atomic.Bool
	sink := events.FuncSink(func(e events.Event) error {
		if e.Terminal() {
			terminal.Store(true)
		}
		return client.writeJSON(e)
	})

	_, err := s.engine.Handle(ctx, req, sink)
	if err == nil || terminal.Load() {
		return
	}
	kind := pipeline.ErrorKind(err)
	msg := err.Error()
	if kind == "cancelled" {
		msg = "request cancelled"
	}
	frame := events.Event{
		Type:      events.TypeError,
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"error": kind, "message": msg},
	}
	if err := client.writeJSON(frame); err != nil {
		s.logger.Debug("failed to write error frame", "requestId", req.RequestID, "err", err)
	}
}
