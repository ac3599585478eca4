package orchestrator

import (
	"context"
	"sync"
)

// CancelRegistry tracks the per-(user, conversation) cancel token of each
// in-flight turn. Cancel is idempotent: cancelling an unknown or already
// cancelled turn is a no-op and emits nothing.
type CancelRegistry struct {
	mu     sync.Mutex
	tokens map[string]*cancelToken
}

type cancelToken struct {
	cancel context.CancelFunc
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{tokens: make(map[string]*cancelToken)}
}

func cancelKey(userID, conversationID string) string {
	return userID + "/" + conversationID
}

// Register derives a cancellable context for a turn and installs its
// token. The returned release must be called when the turn ends.
func (r *CancelRegistry) Register(ctx context.Context, userID, conversationID string) (context.Context, func()) {
	turnCtx, cancel := context.WithCancel(ctx)
	key := cancelKey(userID, conversationID)
	tok := &cancelToken{cancel: cancel}

	r.mu.Lock()
	// A prior token on the same conversation should not linger; the
	// per-conversation lock prevents this in practice, but be safe.
	if old, ok := r.tokens[key]; ok {
		old.cancel()
	}
	r.tokens[key] = tok
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if r.tokens[key] == tok {
			delete(r.tokens, key)
		}
		r.mu.Unlock()
		cancel()
	}
	return turnCtx, release
}

// Cancel raises the cancel token for the conversation's in-flight turn.
func (r *CancelRegistry) Cancel(userID, conversationID string) {
	r.mu.Lock()
	tok, ok := r.tokens[cancelKey(userID, conversationID)]
	r.mu.Unlock()
	if ok {
		tok.cancel()
	}
}

// Active reports whether a turn is registered for the conversation.
func (r *CancelRegistry) Active(userID, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[cancelKey(userID, conversationID)]
	return ok
}
