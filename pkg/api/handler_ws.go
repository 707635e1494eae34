package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ensembleworks/ensemble/pkg/realtime"
)

// wsWriteTimeout bounds a single send so one stalled client cannot pin the
// pump goroutine.
const wsWriteTimeout = 5 * time.Second

// websocket upgrades the connection and bridges it to the realtime tracker.
// Protocol: the client sends {"action":"subscribe","session_id":"<id>|*"}
// to open its feed; any further client message (including pings) counts as a
// liveness ack. The server pushes tracker events as JSON until the client
// disconnects or misses heartbeats past the tracker's deadline.
func (s *Server) websocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Empty patterns fall back to same-origin only.
		OriginPatterns: s.cfg.AllowedWSOrigins,
	})
	if err != nil {
		slog.Warn("WebSocket upgrade rejected", "error", err)
		return
	}

	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	s.sendJSON(ctx, conn, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	var sub *realtime.Subscription
	defer func() {
		if sub != nil {
			s.deps.Tracker.Unsubscribe(connID)
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
			continue
		}
		if sub != nil {
			sub.Ack(time.Now())
		}

		switch msg.Action {
		case "subscribe":
			if msg.SessionID == "" {
				s.sendJSON(ctx, conn, map[string]string{"type": "error", "message": "session_id is required for subscribe"})
				continue
			}
			// Re-subscribing replaces the previous filter.
			if sub != nil {
				s.deps.Tracker.Unsubscribe(connID)
				sub = nil
			}
			newSub, err := s.deps.Tracker.Subscribe(connID, msg.SessionID)
			if err != nil {
				s.sendJSON(ctx, conn, map[string]string{"type": "subscription.error", "message": err.Error()})
				continue
			}
			sub = newSub
			go s.pumpEvents(ctx, cancel, conn, sub)
			s.sendJSON(ctx, conn, map[string]string{"type": "subscription.confirmed", "session_id": msg.SessionID})

		case "unsubscribe":
			if sub != nil {
				s.deps.Tracker.Unsubscribe(connID)
				sub = nil
			}
			s.sendJSON(ctx, conn, map[string]string{"type": "subscription.closed"})

		case "ping":
			s.sendJSON(ctx, conn, map[string]string{"type": "pong"})

		default:
			s.sendJSON(ctx, conn, map[string]string{"type": "error", "message": "unknown action: " + msg.Action})
		}
	}
}

// pumpEvents forwards tracker events to the client until the subscription's
// channel closes (unsubscribe or missed-heartbeat eviction) or a write fails.
func (s *Server) pumpEvents(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *realtime.Subscription) {
	for event := range sub.Events() {
		if err := s.sendJSON(ctx, conn, event); err != nil {
			cancel()
			return
		}
	}
}

// sendJSON marshals and writes one message with a bounded deadline.
func (s *Server) sendJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
