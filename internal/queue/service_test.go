package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncwavelabs/syncwave/internal/config"
	"github.com/syncwavelabs/syncwave/internal/coordinator"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/internal/queue"
	"github.com/syncwavelabs/syncwave/pkg/snowflake"
	"github.com/syncwavelabs/syncwave/pkg/testhelper"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, store action.Store) *queue.Service {
	t.Helper()

	node, err := snowflake.NewNode(&config.Config{SnowflakeNodeID: 1})
	require.NoError(t, err)

	coord := coordinator.NewCoordinator(store, testhelper.NewMockExecutor(), nil, coordinator.Options{}, zap.NewNop())
	return queue.NewService(store, node, coord, zap.NewNop())
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	svc := newTestService(t, store)

	a, err := svc.Enqueue(ctx, queue.EnqueueInput{
		Kind:     "submit-application",
		Payload:  []byte(`{"unit":"4b"}`),
		Endpoint: "/applications",
		SyncTag:  "applicant-7",
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Equal(t, "POST", a.Method, "method defaults to POST")
	assert.Equal(t, action.StatusPending, a.Status)

	snapshot, err := svc.Snapshot(ctx, "")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, a.ID, snapshot[0].ID)
}

func TestEnqueue_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testhelper.NewMemStore())

	_, err := svc.Enqueue(ctx, queue.EnqueueInput{Endpoint: "/e"})
	assert.Error(t, err)

	_, err = svc.Enqueue(ctx, queue.EnqueueInput{Kind: "k"})
	assert.Error(t, err)
}

func TestEnqueue_AssignsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testhelper.NewMemStore())

	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		a, err := svc.Enqueue(ctx, queue.EnqueueInput{Kind: "k", Endpoint: "/e"})
		require.NoError(t, err)
		assert.False(t, seen[a.ID], "id reused")
		seen[a.ID] = true
	}
}

func TestDiscard_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	svc := newTestService(t, store)

	a, err := svc.Enqueue(ctx, queue.EnqueueInput{Kind: "k", Endpoint: "/e"})
	require.NoError(t, err)

	require.NoError(t, svc.Discard(ctx, a.ID))
	require.NoError(t, svc.Discard(ctx, a.ID), "second discard is a no-op")
	require.NoError(t, svc.Discard(ctx, 999999), "unknown id is a no-op")

	snapshot, err := svc.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestDiscard_InFlightIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	svc := newTestService(t, store)

	a, err := svc.Enqueue(ctx, queue.EnqueueInput{Kind: "k", Endpoint: "/e"})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, a.ID, func(cur *action.Action) {
		cur.MarkInFlight()
	}))

	require.NoError(t, svc.Discard(ctx, a.ID))
	snapshot, err := svc.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Len(t, snapshot, 1, "in-flight action must not be cancelled")
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	svc := newTestService(t, store)

	a, err := svc.Enqueue(ctx, queue.EnqueueInput{Kind: "k", Endpoint: "/e"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Retry(ctx, a.ID), action.ErrInvalidState)
	assert.ErrorIs(t, svc.Retry(ctx, 424242), action.ErrNotFound)

	require.NoError(t, store.Update(ctx, a.ID, func(cur *action.Action) {
		cur.MarkInFlight()
		cur.MarkFailed("boom")
	}))

	require.NoError(t, svc.Retry(ctx, a.ID))
	snapshot, err := svc.Snapshot(ctx, action.StatusPending)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, 0, snapshot[0].Attempts)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	svc := newTestService(t, store)

	first, err := svc.Enqueue(ctx, queue.EnqueueInput{Kind: "k", Endpoint: "/e"})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, queue.EnqueueInput{Kind: "k", Endpoint: "/e"})
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, first.ID, func(cur *action.Action) {
		cur.MarkInFlight()
		cur.MarkFailed("boom")
	}))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Pending: 1, InFlight: 0, Failed: 1, Total: 2}, stats)
}
