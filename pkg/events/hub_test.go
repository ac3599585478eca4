package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription, n int) []Envelope {
	out := make([]Envelope, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, <-sub.Events())
	}
	return out
}

func TestHub_SequenceStartsAtOneAndIsGapless(t *testing.T) {
	h := NewHub(16)
	sub := h.Subscribe("user-1")
	defer h.Unsubscribe(sub)

	h.Publish("user-1", KindRouting, RoutingPayload{Intent: "job_search"})
	h.Publish("user-1", KindContent, ContentPayload{Delta: "a"})
	h.Publish("user-1", KindDone, DonePayload{})

	got := drain(sub, 3)
	for i, env := range got {
		assert.Equal(t, int64(i+1), env.Seq)
	}
	assert.Equal(t, KindRouting, got[0].Type)
	assert.Equal(t, KindDone, got[2].Type)
}

func TestHub_LateSubscriberStartsAtOne(t *testing.T) {
	h := NewHub(16)
	early := h.Subscribe("user-1")
	h.Publish("user-1", KindContent, ContentPayload{Delta: "x"})

	late := h.Subscribe("user-1")
	h.Publish("user-1", KindDone, DonePayload{})

	assert.Equal(t, int64(2), drain(early, 2)[1].Seq)
	assert.Equal(t, int64(1), drain(late, 1)[0].Seq)

	h.Unsubscribe(early)
	h.Unsubscribe(late)
}

func TestHub_UserIsolation(t *testing.T) {
	h := NewHub(16)
	alice := h.Subscribe("alice")
	bob := h.Subscribe("bob")
	defer h.Unsubscribe(alice)
	defer h.Unsubscribe(bob)

	h.Publish("alice", KindContent, ContentPayload{Delta: "private"})

	assert.Equal(t, "private", drain(alice, 1)[0].Payload.(ContentPayload).Delta)
	select {
	case env := <-bob.Events():
		t.Fatalf("bob observed alice's event: %+v", env)
	default:
	}
}

func TestHub_BackpressureDisconnects(t *testing.T) {
	h := NewHub(2)
	sub := h.Subscribe("user-1")

	// Nobody drains; third publish overflows the queue of 2.
	h.Publish("user-1", KindContent, ContentPayload{Delta: "1"})
	h.Publish("user-1", KindContent, ContentPayload{Delta: "2"})
	h.Publish("user-1", KindContent, ContentPayload{Delta: "3"})

	assert.True(t, sub.Dropped())
	assert.Equal(t, 0, h.SubscriberCount("user-1"))

	// The queued events remain readable; the channel then closes.
	got := drain(sub, 2)
	assert.Equal(t, int64(2), got[1].Seq)
	_, open := <-sub.Events()
	assert.False(t, open)

	// the overflowed publish never took a sequence number, so a terminal
	// frame at NextSeq continues the stream without a gap
	assert.Equal(t, int64(3), sub.NextSeq())
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe("user-1")

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	assert.Equal(t, 0, h.SubscriberCount("user-1"))
	// Publishing after unsubscribe is a no-op.
	h.Publish("user-1", KindDone, DonePayload{})
}

func TestHub_PublishToUnknownUserIsNoop(t *testing.T) {
	h := NewHub(4)
	h.Publish("ghost", KindDone, DonePayload{})
}

func TestEnvelope_MarshalsFlat(t *testing.T) {
	env := Envelope{
		Type:    KindRouting,
		Seq:     7,
		Payload: RoutingPayload{Intent: "job_search", Agents: []string{"scout"}, Confidence: 0.9},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "routing", flat["type"])
	assert.Equal(t, float64(7), flat["seq"])
	assert.Equal(t, "job_search", flat["intent"])
	assert.Equal(t, []any{"scout"}, flat["agents"])
	assert.NotEmpty(t, flat["ts"])
}

func TestRecorder_CapturesOrder(t *testing.T) {
	r := NewRecorder()
	r.Publish("u", KindRouting, nil)
	r.Publish("u", KindDone, nil)

	assert.Equal(t, []string{KindRouting, KindDone}, r.Kinds())
}
