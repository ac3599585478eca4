package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelRegistryCancelsActiveTurn(t *testing.T) {
	reg := NewCancelRegistry()

	ctx, release := reg.Register(context.Background(), "user-1", "conv-1")
	defer release()

	require.True(t, reg.Active("user-1", "conv-1"))
	require.NoError(t, ctx.Err())

	reg.Cancel("user-1", "conv-1")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestCancelRegistryIdempotentAndUnknown(t *testing.T) {
	reg := NewCancelRegistry()

	// unknown conversation is a no-op
	reg.Cancel("user-1", "missing")

	ctx, release := reg.Register(context.Background(), "user-1", "conv-1")
	reg.Cancel("user-1", "conv-1")
	reg.Cancel("user-1", "conv-1")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	release()
	assert.False(t, reg.Active("user-1", "conv-1"))
}

func TestCancelRegistryReleaseRemovesToken(t *testing.T) {
	reg := NewCancelRegistry()

	_, release := reg.Register(context.Background(), "user-1", "conv-1")
	release()

	assert.False(t, reg.Active("user-1", "conv-1"))
	// cancelling after release is harmless
	reg.Cancel("user-1", "conv-1")
}

func TestCancelRegistryNewTurnSupersedesOld(t *testing.T) {
	reg := NewCancelRegistry()

	oldCtx, oldRelease := reg.Register(context.Background(), "user-1", "conv-1")
	newCtx, newRelease := reg.Register(context.Background(), "user-1", "conv-1")
	defer newRelease()

	// registering again cancels the superseded turn
	assert.ErrorIs(t, oldCtx.Err(), context.Canceled)
	assert.NoError(t, newCtx.Err())

	// the old release must not evict the new token
	oldRelease()
	assert.True(t, reg.Active("user-1", "conv-1"))
}

func TestCancelRegistryIsolatesConversations(t *testing.T) {
	reg := NewCancelRegistry()

	ctxA, releaseA := reg.Register(context.Background(), "user-1", "conv-a")
	ctxB, releaseB := reg.Register(context.Background(), "user-1", "conv-b")
	defer releaseA()
	defer releaseB()

	reg.Cancel("user-1", "conv-a")
	assert.ErrorIs(t, ctxA.Err(), context.Canceled)
	assert.NoError(t, ctxB.Err())
}
