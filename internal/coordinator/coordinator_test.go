package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/internal/reachability"
	"github.com/syncwavelabs/syncwave/pkg/testhelper"
	"go.uber.org/zap"
)

func testOptions() Options {
	return Options{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		CapDelay:     time.Second,
		MaxInFlight:  1,
		PollInterval: time.Hour,
		BatchSize:    25,
	}
}

func onlineMonitor(t *testing.T, prober *testhelper.ManualProber) *reachability.Monitor {
	t.Helper()
	m := reachability.NewMonitor(prober, time.Hour, zap.NewNop())
	m.Check(context.Background())
	return m
}

// fakeClock lets tests step past backoff windows deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func enqueue(t *testing.T, store action.Store, id int64, kind, tag string) *action.Action {
	t.Helper()
	a := action.New(id, kind, []byte(`{}`), "/collab", "POST", tag)
	require.NoError(t, store.Append(context.Background(), a))
	return a
}

func TestDrain_SuccessPrunesAction(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	prober := testhelper.NewManualProber(false)
	monitor := onlineMonitor(t, prober)

	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())

	// Enqueued while offline: stays pending.
	enqueue(t, store, 1, "submit-application", "profile-1")
	require.NoError(t, c.Drain(ctx))
	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, action.StatusPending, snapshot[0].Status)

	// Reachability regained: the action executes and is pruned.
	prober.SetOnline(true)
	monitor.Check(ctx)
	require.NoError(t, c.Drain(ctx))

	snapshot, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
	assert.Equal(t, []int64{1}, exec.Executed())
}

func TestDrain_SameTagExecutesInEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())

	enqueue(t, store, 1, "update-profile", "profile-1")
	enqueue(t, store, 2, "update-profile", "profile-1")
	enqueue(t, store, 3, "update-profile", "profile-1")

	require.NoError(t, c.Drain(ctx))

	assert.Equal(t, []int64{1, 2, 3}, exec.Executed())
	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestDrain_PermanentFailureFailsAfterOneAttempt(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	exec.Script("bad-payload", action.Permanent("upstream rejected request (422)"))
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())

	enqueue(t, store, 7, "bad-payload", "")
	require.NoError(t, c.Drain(ctx))

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, action.StatusFailed, snapshot[0].Status)
	assert.Equal(t, 1, snapshot[0].Attempts)
	assert.Equal(t, []int64{7}, exec.Executed())
}

func TestDrain_RetryableFailsAfterExactlyMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	exec.Script("flaky", action.Retryable("upstream server error (503)"))
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	clock := newFakeClock()
	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())
	c.now = clock.Now

	enqueue(t, store, 9, "flaky", "")

	wantAttempts := []int{1, 2, 3}
	for i, want := range wantAttempts {
		require.NoError(t, c.Drain(ctx))

		snapshot, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot, 1)
		assert.Equal(t, want, snapshot[0].Attempts, "after drain %d", i+1)

		clock.Advance(2 * time.Second)
	}

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, action.StatusFailed, snapshot[0].Status)
	assert.Equal(t, 3, snapshot[0].Attempts)

	// Draining again must not re-dispatch a terminal action.
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, []int64{9, 9, 9}, exec.Executed())
}

func TestDrain_BackoffDefersNextDispatch(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	exec.Script("flaky", action.Retryable("timeout"), action.Success())
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	opts := testOptions()
	opts.BaseDelay = time.Minute
	clock := newFakeClock()
	c := NewCoordinator(store, exec, monitor, opts, zap.NewNop())
	c.now = clock.Now

	enqueue(t, store, 4, "flaky", "")
	require.NoError(t, c.Drain(ctx))

	// Still within the backoff window: not eligible.
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, []int64{4}, exec.Executed())

	clock.Advance(3 * time.Minute)
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, []int64{4, 4}, exec.Executed())

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestDrain_RetryAfterHintOverridesBackoff(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	exec.Script("rate-limited", action.RetryableAfter("upstream rate limited (429)", time.Hour))
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	clock := newFakeClock()
	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())
	c.now = clock.Now

	enqueue(t, store, 5, "rate-limited", "")
	require.NoError(t, c.Drain(ctx))

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	require.NotNil(t, snapshot[0].NextAttemptAt)
	assert.WithinDuration(t, clock.Now().Add(time.Hour), *snapshot[0].NextAttemptAt, time.Second)
}

func TestDrain_HaltsWhenReachabilityLostMidDrain(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	prober := testhelper.NewManualProber(true)
	monitor := onlineMonitor(t, prober)

	// First dispatch takes the upstream down; the drain must halt with the
	// remaining action still pending.
	exec := &outageExecutor{prober: prober}
	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())

	enqueue(t, store, 1, "first", "")
	enqueue(t, store, 2, "second", "")

	require.NoError(t, c.Drain(ctx))

	assert.Equal(t, 1, exec.calls)
	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	for _, a := range snapshot {
		assert.Equal(t, action.StatusPending, a.Status)
	}
}

type outageExecutor struct {
	prober *testhelper.ManualProber
	calls  int
}

func (e *outageExecutor) Execute(ctx context.Context, a *action.Action) action.Outcome {
	e.calls++
	e.prober.SetOnline(false)
	return action.Retryable("connection refused")
}

func TestDrain_AtMostOneInFlightPerTag(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	exec := newTrackingExecutor(t)

	opts := testOptions()
	opts.MaxInFlight = 3
	c := NewCoordinator(store, exec, monitor, opts, zap.NewNop())

	enqueue(t, store, 1, "a", "profile-1")
	enqueue(t, store, 2, "b", "profile-1")
	enqueue(t, store, 3, "c", "profile-2")
	enqueue(t, store, 4, "d", "")
	enqueue(t, store, 5, "e", "")

	require.NoError(t, c.Drain(ctx))

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
	assert.Equal(t, 5, exec.total)
}

// trackingExecutor fails the test if two actions with the same tag are ever
// in flight simultaneously.
type trackingExecutor struct {
	t      *testing.T
	mu     sync.Mutex
	active map[string]int
	total  int
}

func newTrackingExecutor(t *testing.T) *trackingExecutor {
	return &trackingExecutor{t: t, active: make(map[string]int)}
}

func (e *trackingExecutor) Execute(ctx context.Context, a *action.Action) action.Outcome {
	if a.SyncTag != "" {
		e.mu.Lock()
		e.active[a.SyncTag]++
		if e.active[a.SyncTag] > 1 {
			e.t.Errorf("two actions with tag %q in flight", a.SyncTag)
		}
		e.mu.Unlock()
	}

	time.Sleep(5 * time.Millisecond)

	e.mu.Lock()
	if a.SyncTag != "" {
		e.active[a.SyncTag]--
	}
	e.total++
	e.mu.Unlock()
	return action.Success()
}

func TestRecoverStranded_RequeuesInterruptedActions(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	// A previous process died mid-dispatch: the row was persisted as
	// in_flight and the outcome was never recorded.
	interrupted := action.New(1, "update-profile", []byte(`{}`), "/collab", "POST", "profile-1")
	interrupted.MarkInFlight()
	require.NoError(t, store.Append(ctx, interrupted))
	enqueue(t, store, 2, "update-profile", "profile-1")

	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())
	require.NoError(t, c.RecoverStranded(ctx))

	snapshot, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.Equal(t, action.StatusPending, snapshot[0].Status)
	assert.Equal(t, 1, snapshot[0].Attempts, "the interrupted attempt stays counted")

	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, []int64{1, 2}, exec.Executed(), "the interrupted action keeps its place in tag order")
}

func TestRecoverStranded_WithoutRecoveryRowStaysStuck(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	interrupted := action.New(1, "update-profile", []byte(`{}`), "/collab", "POST", "profile-1")
	interrupted.MarkInFlight()
	require.NoError(t, store.Append(ctx, interrupted))

	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())

	// Drain only considers pending rows, so recovery is the mechanism that
	// makes an interrupted row dispatchable again.
	require.NoError(t, c.Drain(ctx))
	assert.Empty(t, exec.Executed())

	require.NoError(t, c.RecoverStranded(ctx))
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, []int64{1}, exec.Executed())
}

func TestSubscribeCompletion(t *testing.T) {
	ctx := context.Background()
	store := testhelper.NewMemStore()
	exec := testhelper.NewMockExecutor()
	exec.Script("bad", action.Permanent("upstream rejected request (400)"))
	monitor := onlineMonitor(t, testhelper.NewManualProber(true))

	c := NewCoordinator(store, exec, monitor, testOptions(), zap.NewNop())

	var mu sync.Mutex
	events := make(map[int64]action.OutcomeKind)
	unsubscribe := c.SubscribeCompletion(func(id int64, outcome action.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		events[id] = outcome.Kind
	})

	enqueue(t, store, 1, "ok", "")
	enqueue(t, store, 2, "bad", "")
	require.NoError(t, c.Drain(ctx))

	mu.Lock()
	assert.Equal(t, action.OutcomeSuccess, events[1])
	assert.Equal(t, action.OutcomePermanentFailure, events[2])
	mu.Unlock()

	unsubscribe()
	enqueue(t, store, 3, "ok", "")
	require.NoError(t, c.Drain(ctx))

	mu.Lock()
	_, seen := events[3]
	mu.Unlock()
	assert.False(t, seen, "unsubscribed callback must not fire")
}

func TestBackoffCapped(t *testing.T) {
	opts := Options{BaseDelay: 10 * time.Second, CapDelay: 5 * time.Minute}
	c := NewCoordinator(testhelper.NewMemStore(), testhelper.NewMockExecutor(), nil, opts, zap.NewNop())

	assert.Equal(t, 20*time.Second, c.backoff(1))
	assert.Equal(t, 40*time.Second, c.backoff(2))
	assert.Equal(t, 5*time.Minute, c.backoff(10))
	assert.Equal(t, 5*time.Minute, c.backoff(60))
}
