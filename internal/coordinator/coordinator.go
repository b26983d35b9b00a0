package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/internal/reachability"
	"go.uber.org/zap"
)

// Options bound the drain behaviour.
type Options struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	CapDelay     time.Duration
	MaxInFlight  int
	PollInterval time.Duration
	BatchSize    int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 10 * time.Second
	}
	if o.CapDelay <= 0 {
		o.CapDelay = 5 * time.Minute
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	return o
}

// Coordinator drains the queue whenever the upstream is reachable, enforcing
// enqueue order per sync tag and at most one in-flight action per tag.
type Coordinator struct {
	store   action.Store
	exec    action.Executor
	monitor *reachability.Monitor
	logger  *zap.Logger
	opts    Options

	kick chan struct{}
	now  func() time.Time

	mu          sync.Mutex
	inflightTag map[string]struct{}
	inflightIDs map[int64]struct{}
	nextSubID   int64
	subs        map[int64]func(int64, action.Outcome)
}

func NewCoordinator(store action.Store, exec action.Executor, monitor *reachability.Monitor, opts Options, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		store:       store,
		exec:        exec,
		monitor:     monitor,
		logger:      logger.Named("coordinator"),
		opts:        opts.withDefaults(),
		kick:        make(chan struct{}, 1),
		now:         func() time.Time { return time.Now().UTC() },
		inflightTag: make(map[string]struct{}),
		inflightIDs: make(map[int64]struct{}),
		subs:        make(map[int64]func(int64, action.Outcome)),
	}

	if monitor != nil {
		monitor.Subscribe(func(s reachability.State) {
			if s == reachability.Online {
				c.Kick()
			}
		})
	}

	return c
}

// Kick requests a drain pass. Safe to call from any goroutine; coalesces
// while a drain is already scheduled.
func (c *Coordinator) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// SubscribeCompletion registers a callback invoked when an action reaches a
// terminal state. The returned function unsubscribes.
func (c *Coordinator) SubscribeCompletion(fn func(id int64, outcome action.Outcome)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// InFlight reports whether the given action is currently being executed.
func (c *Coordinator) InFlight(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflightIDs[id]
	return ok
}

// Run drains on startup, on reachability regained, on enqueue kicks, and on a
// periodic tick while online. Actions a previous process left in flight are
// requeued before the first drain.
func (c *Coordinator) Run(ctx context.Context) {
	if err := c.RecoverStranded(ctx); err != nil {
		c.logger.Error("recover_stranded_failed", zap.Error(err))
	}

	if err := c.Drain(ctx); err != nil {
		c.logger.Error("drain_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
		case <-ticker.C:
		}

		if err := c.Drain(ctx); err != nil {
			c.logger.Error("drain_failed", zap.Error(err))
		}
	}
}

// RecoverStranded requeues actions persisted as in_flight by a previous
// process. A crashed dispatch never reported an outcome, so the row would
// otherwise stay in_flight forever, blocking its sync tag's enqueue order.
// Attempt counts are preserved.
func (c *Coordinator) RecoverStranded(ctx context.Context) error {
	stranded, err := c.store.ListByStatus(ctx, []action.Status{action.StatusInFlight}, 0)
	if err != nil {
		return fmt.Errorf("list in-flight: %w", err)
	}

	for _, a := range stranded {
		if c.InFlight(a.ID) {
			continue
		}
		if err := c.store.Update(ctx, a.ID, func(cur *action.Action) {
			cur.MarkInterrupted()
		}); err != nil {
			return fmt.Errorf("requeue action %d: %w", a.ID, err)
		}
		c.logger.Warn("action_requeued_after_interrupt",
			zap.Int64("action_id", a.ID),
			zap.String("kind", a.Kind),
			zap.Int("attempts", a.Attempts),
		)
	}
	return nil
}

// Drain repeatedly dispatches the oldest eligible pending actions until none
// remain, reachability is lost, or the context is cancelled. Losing
// reachability mid-drain halts cleanly: undispatched actions stay pending.
func (c *Coordinator) Drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.monitor != nil && c.monitor.Current() != reachability.Online {
			return nil
		}

		batch, err := c.nextEligible(ctx)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if len(batch) == 1 {
			c.dispatch(ctx, batch[0])
			continue
		}

		var wg sync.WaitGroup
		for _, a := range batch {
			wg.Add(1)
			go func(a *action.Action) {
				defer wg.Done()
				c.dispatch(ctx, a)
			}(a)
		}
		wg.Wait()
	}
}

// nextEligible selects up to MaxInFlight pending actions, oldest first, whose
// sync tags have no in-flight sibling. Tags are claimed here so that two
// actions sharing a tag can never both enter the batch.
func (c *Coordinator) nextEligible(ctx context.Context) ([]*action.Action, error) {
	pending, err := c.store.ListByStatus(ctx, []action.Status{action.StatusPending}, c.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var batch []*action.Action
	claimed := make(map[string]struct{})
	for _, a := range pending {
		if len(c.inflightIDs)+len(batch) >= c.opts.MaxInFlight {
			break
		}
		if !a.Eligible(now) {
			continue
		}
		if a.SyncTag != "" {
			if _, busy := c.inflightTag[a.SyncTag]; busy {
				continue
			}
			if _, dup := claimed[a.SyncTag]; dup {
				continue
			}
			claimed[a.SyncTag] = struct{}{}
		}
		batch = append(batch, a)
	}

	for _, a := range batch {
		if a.SyncTag != "" {
			c.inflightTag[a.SyncTag] = struct{}{}
		}
		c.inflightIDs[a.ID] = struct{}{}
	}

	return batch, nil
}

func (c *Coordinator) dispatch(ctx context.Context, a *action.Action) {
	defer c.release(a)

	a.MarkInFlight()
	if err := c.persist(ctx, a); err != nil {
		c.logger.Error("mark_in_flight_failed", zap.Error(err), zap.Int64("action_id", a.ID))
		return
	}

	recordInFlight(1)
	outcome := c.exec.Execute(ctx, a)
	recordInFlight(-1)
	recordOutcome(outcome.Kind)

	switch outcome.Kind {
	case action.OutcomeSuccess:
		a.MarkSucceeded()
		if err := c.store.Remove(ctx, a.ID); err != nil {
			c.logger.Error("prune_succeeded_failed", zap.Error(err), zap.Int64("action_id", a.ID))
		}
		c.logger.Info("action_succeeded",
			zap.Int64("action_id", a.ID),
			zap.String("kind", a.Kind),
			zap.Int("attempts", a.Attempts),
		)
		c.emit(a.ID, outcome)

	case action.OutcomePermanentFailure:
		a.MarkFailed(outcome.Reason)
		if err := c.persist(ctx, a); err != nil {
			c.logger.Error("mark_failed_failed", zap.Error(err), zap.Int64("action_id", a.ID))
		}
		c.logger.Warn("action_failed_permanent",
			zap.Int64("action_id", a.ID),
			zap.String("kind", a.Kind),
			zap.String("reason", outcome.Reason),
		)
		c.emit(a.ID, outcome)

	case action.OutcomeRetryableFailure:
		if a.Attempts >= c.opts.MaxAttempts {
			a.MarkFailed(outcome.Reason)
			if err := c.persist(ctx, a); err != nil {
				c.logger.Error("mark_failed_failed", zap.Error(err), zap.Int64("action_id", a.ID))
			}
			c.logger.Warn("action_failed_retries_exhausted",
				zap.Int64("action_id", a.ID),
				zap.String("kind", a.Kind),
				zap.Int("attempts", a.Attempts),
				zap.String("reason", outcome.Reason),
			)
			c.emit(a.ID, action.Outcome{Kind: action.OutcomePermanentFailure, Reason: outcome.Reason})
			return
		}

		delay := c.backoff(a.Attempts)
		if outcome.RetryAfter > delay {
			delay = outcome.RetryAfter
		}
		a.MarkRetry(outcome.Reason, c.now().Add(delay))
		if err := c.persist(ctx, a); err != nil {
			c.logger.Error("mark_retry_failed", zap.Error(err), zap.Int64("action_id", a.ID))
		}
		c.logger.Info("action_retry_scheduled",
			zap.Int64("action_id", a.ID),
			zap.String("kind", a.Kind),
			zap.Int("attempts", a.Attempts),
			zap.Duration("delay", delay),
			zap.String("reason", outcome.Reason),
		)

		// A transport-level failure may mean the upstream went away
		// entirely; recheck so the drain halts instead of burning
		// through the rest of the queue.
		if c.monitor != nil {
			c.monitor.Check(ctx)
		}
	}
}

func (c *Coordinator) release(a *action.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.SyncTag != "" {
		delete(c.inflightTag, a.SyncTag)
	}
	delete(c.inflightIDs, a.ID)
}

func (c *Coordinator) persist(ctx context.Context, a *action.Action) error {
	snapshot := *a
	return c.store.Update(ctx, a.ID, func(cur *action.Action) {
		*cur = snapshot
	})
}

func (c *Coordinator) emit(id int64, outcome action.Outcome) {
	c.mu.Lock()
	subs := make([]func(int64, action.Outcome), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(id, outcome)
	}
}

func (c *Coordinator) backoff(attempts int) time.Duration {
	shift := attempts
	if shift > 16 {
		shift = 16
	}

	d := c.opts.BaseDelay * time.Duration(uint64(1)<<uint(shift))
	if d > c.opts.CapDelay || d <= 0 {
		return c.opts.CapDelay
	}
	return d
}
