package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/kaziai/kazi/pkg/events"
	"github.com/kaziai/kazi/pkg/models"
)

// websocketHandler upgrades GET /ws into a push subscription. The first
// client frame must be an auth message; everything after that is the
// server-to-client event stream plus client pings.
func (s *Server) websocketHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Push.AllowedOrigins,
	})
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	s.servePush(c.Request.Context(), conn)
}

func (s *Server) servePush(ctx context.Context, conn *websocket.Conn) {
	push := s.cfg.Push

	userID, err := s.awaitAuth(ctx, conn, push.AuthGrace)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	sub := s.deps.Hub.Subscribe(userID)
	defer s.deps.Hub.Unsubscribe(sub)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeEvents(ctx, conn, sub, push.WriteTimeout)
	}()

	s.readClientFrames(ctx, conn, sub, 2*push.HeartbeatInterval)

	// Ending the subscription closes the event channel, which lets the
	// writer drain and exit.
	s.deps.Hub.Unsubscribe(sub)
	<-writerDone

	if sub.Dropped() {
		// The queue has drained, so a direct write cannot race the writer.
		// The stream still terminates with an error frame before the close.
		final := events.Envelope{
			Type:      events.KindError,
			Seq:       sub.NextSeq(),
			Payload:   events.ErrorPayload{Kind: models.ErrKindSubscriberBackpressure, Message: "subscriber cannot keep up; reconnect to resume"},
			Timestamp: time.Now(),
		}
		if data, err := json.Marshal(final); err == nil {
			writeCtx, cancel := context.WithTimeout(ctx, push.WriteTimeout)
			if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
				slog.Debug("Failed to deliver backpressure error frame",
					"subscription_id", sub.ID, "error", err)
			}
			cancel()
		}
		conn.Close(websocket.StatusPolicyViolation, "subscriber_backpressure")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// awaitAuth reads the first client frame and verifies its token. The
// connection gets at most the grace window to authenticate.
func (s *Server) awaitAuth(ctx context.Context, conn *websocket.Conn, grace time.Duration) (string, error) {
	authCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	var msg events.ClientMessage
	if err := wsjson.Read(authCtx, conn, &msg); err != nil {
		return "", err
	}
	if msg.Type != "auth" {
		return "", ErrInvalidToken
	}
	return s.auth.Verify(msg.Token)
}

// writeEvents drains the subscription queue to the transport. Each write
// is individually bounded; a failed or overdue write ends the loop.
func (s *Server) writeEvents(ctx context.Context, conn *websocket.Conn, sub *events.Subscription, timeout time.Duration) {
	for env := range sub.Events() {
		data, err := json.Marshal(env)
		if err != nil {
			slog.Error("Failed to encode push event",
				"subscription_id", sub.ID, "kind", env.Type, "error", err)
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, timeout)
		err = conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("Push write failed, ending subscription",
				"subscription_id", sub.ID, "error", err)
			return
		}
	}
}

// readClientFrames processes inbound frames until the connection goes
// quiet or breaks. Pings elicit a pong on this subscription only; frames
// of unknown type are ignored. Idle longer than the deadline closes the
// subscription.
func (s *Server) readClientFrames(ctx context.Context, conn *websocket.Conn, sub *events.Subscription, idle time.Duration) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		var msg events.ClientMessage
		err := wsjson.Read(readCtx, conn, &msg)
		cancel()
		if err != nil {
			return
		}

		select {
		case <-sub.Done():
			return
		default:
		}

		if msg.Type == "ping" {
			s.deps.Hub.PublishTo(sub, events.KindPong, events.PongPayload{})
		}
	}
}
