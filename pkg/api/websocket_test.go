package api

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaziai/kazi/pkg/events"
)

func dialPush(t *testing.T, f *testFixture) (*websocket.Conn, context.Context) {
	t.Helper()

	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, srv.URL+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func authenticate(t *testing.T, f *testFixture, conn *websocket.Conn, ctx context.Context, userID string) {
	t.Helper()

	token, err := f.server.auth.Issue(userID, time.Hour)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, events.ClientMessage{Type: "auth", Token: token}))

	// the subscription registers once the auth frame is processed
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.SubscriberCount(userID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketDeliversUserEvents(t *testing.T) {
	f := newTestFixture()
	conn, ctx := dialPush(t, f)
	authenticate(t, f, conn, ctx, "user-1")

	f.hub.Publish("user-1", events.KindNotification, events.NotificationPayload{
		ID: "n-1", NotificationType: "job_monitor", Title: "New roles",
	})

	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "notification", frame["type"])
	assert.Equal(t, float64(1), frame["seq"])
	assert.Equal(t, "New roles", frame["title"])
}

func TestWebSocketPingPong(t *testing.T) {
	f := newTestFixture()
	conn, ctx := dialPush(t, f)
	authenticate(t, f, conn, ctx, "user-1")

	require.NoError(t, wsjson.Write(ctx, conn, events.ClientMessage{Type: "ping"}))

	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "pong", frame["type"])
	assert.Equal(t, float64(1), frame["seq"])
}

func TestWebSocketSequencePerSubscription(t *testing.T) {
	f := newTestFixture()
	conn, ctx := dialPush(t, f)
	authenticate(t, f, conn, ctx, "user-1")

	f.hub.Publish("user-1", events.KindDone, events.DonePayload{TurnID: "turn-1"})
	f.hub.Publish("user-1", events.KindDone, events.DonePayload{TurnID: "turn-2"})

	var first, second map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, float64(1), first["seq"])
	assert.Equal(t, float64(2), second["seq"])
}

func TestWebSocketBackpressureEndsWithErrorFrame(t *testing.T) {
	f := newTestFixture()
	conn, ctx := dialPush(t, f)
	authenticate(t, f, conn, ctx, "user-1")

	// flood a non-reading client until the hub drops the subscription
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; f.hub.SubscriberCount("user-1") > 0; i++ {
		if time.Now().After(deadline) {
			t.Fatal("subscription never overflowed")
		}
		f.hub.Publish("user-1", events.KindNotification, events.NotificationPayload{
			ID: "n-1", NotificationType: "job_monitor", Title: "New roles",
		})
	}

	// everything delivered is gapless, and the stream terminates with the
	// backpressure error frame
	lastSeq := float64(0)
	for {
		var frame map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &frame))
		require.Equal(t, lastSeq+1, frame["seq"])
		lastSeq = frame["seq"].(float64)
		if frame["type"] == "error" {
			assert.Equal(t, "subscriber_backpressure", frame["kind"])
			break
		}
	}

	var extra map[string]any
	err := wsjson.Read(ctx, conn, &extra)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	f := newTestFixture()
	conn, ctx := dialPush(t, f)

	require.NoError(t, wsjson.Write(ctx, conn, events.ClientMessage{Type: "auth", Token: "bogus"}))

	var frame map[string]any
	err := wsjson.Read(ctx, conn, &frame)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWebSocketClosesUnauthenticatedAfterGrace(t *testing.T) {
	f := newTestFixture()
	conn, ctx := dialPush(t, f)

	// no auth frame is ever sent; the grace window expires
	var frame map[string]any
	err := wsjson.Read(ctx, conn, &frame)
	require.Error(t, err)
}

func TestWebSocketOnlyTargetUserReceives(t *testing.T) {
	f := newTestFixture()
	conn, ctx := dialPush(t, f)
	authenticate(t, f, conn, ctx, "user-1")

	f.hub.Publish("someone-else", events.KindNotification, events.NotificationPayload{ID: "n-1"})
	f.hub.Publish("user-1", events.KindDone, events.DonePayload{TurnID: "turn-1"})

	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "done", frame["type"])
}
