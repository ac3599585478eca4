package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaziai/kazi/pkg/metrics"
)

// Hub is the in-process per-user event bus. Publishing enqueues onto every
// live subscription for the target user; a subscription whose queue is full
// is disconnected on the spot so publishers never block.
type Hub struct {
	mu        sync.RWMutex
	users     map[string]map[string]*Subscription // userID → subID → sub
	queueSize int
}

// Subscription is one live consumer bound to a single user. Events arrive
// on Events() already wrapped and sequenced; the channel closes when the
// subscription ends.
type Subscription struct {
	ID     string
	UserID string

	queue chan Envelope
	seq   int64

	closeOnce sync.Once
	done      chan struct{}

	// dropped is set when the hub disconnected this subscription for
	// backpressure, so the transport can report the close reason.
	mu      sync.Mutex
	dropped bool
}

// NewHub creates a hub with the given per-subscription queue bound.
func NewHub(queueSize int) *Hub {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Hub{
		users:     make(map[string]map[string]*Subscription),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscription for the user.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		UserID: userID,
		queue:  make(chan Envelope, h.queueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	subs, ok := h.users[userID]
	if !ok {
		subs = make(map[string]*Subscription)
		h.users[userID] = subs
	}
	subs[sub.ID] = sub
	h.mu.Unlock()

	metrics.SubscriptionOpened()
	slog.Debug("Subscription opened", "subscription_id", sub.ID, "user_id", userID)
	return sub
}

// Unsubscribe removes a subscription and closes its event channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub)
	sub.close()
}

// Publish implements Publisher. Sequence numbers are assigned per
// subscription at enqueue time so each subscriber sees a gapless 1..n
// stream regardless of when it connected.
func (h *Hub) Publish(userID, kind string, payload any) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.users[userID]))
	for _, sub := range h.users[userID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	now := time.Now()
	for _, sub := range subs {
		if !sub.enqueue(kind, payload, now) {
			slog.Warn("Subscriber cannot drain, disconnecting",
				"subscription_id", sub.ID, "user_id", userID, "kind", kind)
			sub.markDropped()
			h.remove(sub)
			sub.close()
		}
	}
}

// PublishTo enqueues an event onto a single subscription, with the same
// overflow policy as Publish. Used for transport-level replies (pong) that
// must not fan out to the user's other subscriptions.
func (h *Hub) PublishTo(sub *Subscription, kind string, payload any) {
	if !sub.enqueue(kind, payload, time.Now()) {
		slog.Warn("Subscriber cannot drain, disconnecting",
			"subscription_id", sub.ID, "user_id", sub.UserID, "kind", kind)
		sub.markDropped()
		h.remove(sub)
		sub.close()
	}
}

// SubscriberCount returns the number of live subscriptions for a user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.users[sub.UserID]
	if !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.users, sub.UserID)
	}
}

// Events returns the delivery channel. It closes when the subscription
// ends, whether by Unsubscribe or a backpressure disconnect.
func (s *Subscription) Events() <-chan Envelope {
	return s.queue
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped reports whether the hub disconnected this subscription for
// backpressure.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// NextSeq returns the sequence number following the last enqueued event.
// The transport uses it to append a terminal frame without a gap after the
// queue has drained.
func (s *Subscription) NextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq + 1
}

func (s *Subscription) markDropped() {
	s.mu.Lock()
	s.dropped = true
	s.mu.Unlock()
	metrics.SubscriptionDropped()
}

// enqueue assigns the next sequence number and attempts a non-blocking
// send. Returns false when the queue is full or the subscription closed.
func (s *Subscription) enqueue(kind string, payload any, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
	}

	env := Envelope{
		Type:      kind,
		Seq:       s.seq + 1,
		Payload:   payload,
		Timestamp: ts,
	}

	select {
	case s.queue <- env:
		s.seq++
		return true
	default:
		return false
	}
}

// close runs under s.mu so a concurrent enqueue can never send on the
// closed queue.
func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		close(s.queue)
		s.mu.Unlock()
		metrics.SubscriptionClosed()
	})
}
