package reachability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the monitor's belief about upstream connectivity.
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// Prober checks whether the upstream is reachable right now.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor tracks upstream reachability by probing periodically and notifies
// subscribers exactly once per transition. Probes are the source of truth;
// there is no passive signal to trust.
type Monitor struct {
	prober   Prober
	logger   *zap.Logger
	interval time.Duration

	mu    sync.Mutex
	state State
	subs  []func(State)
}

func NewMonitor(prober Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 45 * time.Second
	}
	return &Monitor{
		prober:   prober,
		logger:   logger.Named("reachability"),
		interval: interval,
		state:    Offline,
	}
}

// Current returns the last observed state. Before the first probe completes
// the monitor reports Offline.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a callback invoked once per state transition. Repeated
// identical observations do not re-notify.
func (m *Monitor) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Run probes until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one probe and applies the observation. Callers may invoke it
// out of band (e.g. after a transport failure) without waiting for the tick.
func (m *Monitor) Check(ctx context.Context) State {
	next := Online
	if err := m.prober.Probe(ctx); err != nil {
		next = Offline
	}
	m.observe(next)
	return next
}

func (m *Monitor) observe(next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	subs := make([]func(State), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("reachability_changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)

	for _, fn := range subs {
		fn(next)
	}
}
