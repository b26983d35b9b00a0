package version

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSource yields the currently published default version. Satisfied by
// *Registry.
type DefaultSource interface {
	GetDefault(ctx context.Context) (*EngineVersion, error)
}

// Notifier watches the registry and surfaces two discrete, one-shot signals:
// the engine becoming ready (durable store loaded, upstream configured) and a
// newer default version appearing. Each transition notifies subscribers at
// most once; subscribing after the fact does not replay stale events.
type Notifier struct {
	source   DefaultSource
	logger   *zap.Logger
	interval time.Duration

	mu         sync.Mutex
	running    string
	ready      bool
	announced  map[string]struct{}
	readySubs  []func()
	updateSubs []func(newVersion string)
}

func NewNotifier(source DefaultSource, runningVersion string, interval time.Duration, logger *zap.Logger) *Notifier {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Notifier{
		source:    source,
		logger:    logger.Named("version.notifier"),
		interval:  interval,
		running:   runningVersion,
		announced: make(map[string]struct{}),
	}
}

// Running returns the version currently adopted by this process.
func (n *Notifier) Running() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// OnReady registers a callback for the ready transition. Late subscribers
// after the event fired are never called.
func (n *Notifier) OnReady(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readySubs = append(n.readySubs, fn)
}

// OnUpdateAvailable registers a callback fired once per newly published
// default version.
func (n *Notifier) OnUpdateAvailable(fn func(newVersion string)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updateSubs = append(n.updateSubs, fn)
}

// MarkReady fires the ready event. Subsequent calls are no-ops.
func (n *Notifier) MarkReady() {
	n.mu.Lock()
	if n.ready {
		n.mu.Unlock()
		return
	}
	n.ready = true
	subs := make([]func(), len(n.readySubs))
	copy(subs, n.readySubs)
	n.mu.Unlock()

	n.logger.Info("engine_ready")
	for _, fn := range subs {
		fn()
	}
}

// Run polls the registry until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	if err := n.CheckForUpdate(ctx); err != nil {
		n.logger.Error("update_check_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.CheckForUpdate(ctx); err != nil {
				n.logger.Error("update_check_failed", zap.Error(err))
			}
		}
	}
}

// CheckForUpdate compares the registry default against the running version
// and announces a newly published default exactly once.
func (n *Notifier) CheckForUpdate(ctx context.Context) error {
	def, err := n.source.GetDefault(ctx)
	if err != nil {
		return err
	}
	if def == nil {
		return nil
	}

	n.mu.Lock()
	if def.Version == n.running {
		n.mu.Unlock()
		return nil
	}
	if _, seen := n.announced[def.Version]; seen {
		n.mu.Unlock()
		return nil
	}
	n.announced[def.Version] = struct{}{}
	subs := make([]func(string), len(n.updateSubs))
	copy(subs, n.updateSubs)
	n.mu.Unlock()

	n.logger.Info("update_available",
		zap.String("running", n.Running()),
		zap.String("available", def.Version),
	)
	for _, fn := range subs {
		fn(def.Version)
	}
	return nil
}

// ActivateUpdate adopts the current default version as the running one. The
// queue store is independent of version activation: queued actions are
// untouched by adoption.
func (n *Notifier) ActivateUpdate(ctx context.Context) (string, error) {
	def, err := n.source.GetDefault(ctx)
	if err != nil {
		return "", err
	}
	if def == nil {
		return "", fmt.Errorf("no default version published")
	}

	n.mu.Lock()
	prev := n.running
	n.running = def.Version
	n.mu.Unlock()

	n.logger.Info("update_activated",
		zap.String("from", prev),
		zap.String("to", def.Version),
	)
	return def.Version, nil
}
