package events

import "sync"

// Publisher fans an event out to every live subscription of one user.
// Implementations must never block the caller; slow subscribers are
// disconnected, not waited on.
type Publisher interface {
	Publish(userID, kind string, payload any)
}

// NopPublisher discards all events. Used where a component requires a
// Publisher but no client is listening (e.g. some background paths and
// tests).
type NopPublisher struct{}

func (NopPublisher) Publish(string, string, any) {}

// Recorded is one event captured by a Recorder.
type Recorded struct {
	UserID  string
	Kind    string
	Payload any
}

// Recorder captures published events in order. Test helper.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements Publisher.
func (r *Recorder) Publish(userID, kind string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{UserID: userID, Kind: kind, Payload: payload})
}

// Events returns a snapshot of everything published so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns just the event kinds, in publish order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}
