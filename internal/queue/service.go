package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/syncwavelabs/syncwave/internal/coordinator"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/pkg/snowflake"
	"go.uber.org/zap"
)

// Service is the surface collaborators use: enqueue, discard, retry, and
// read-only snapshots. All other queue mutations belong to the coordinator.
type Service struct {
	store  action.Store
	node   *snowflake.Node
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

func NewService(store action.Store, node *snowflake.Node, coord *coordinator.Coordinator, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		node:   node,
		coord:  coord,
		logger: logger.Named("queue"),
	}
}

// EnqueueInput describes a deferred operation to persist.
type EnqueueInput struct {
	Kind     string          `json:"kind" binding:"required"`
	Payload  json.RawMessage `json:"payload"`
	Endpoint string          `json:"endpoint" binding:"required"`
	Method   string          `json:"method"`
	SyncTag  string          `json:"sync_tag"`
}

// Enqueue persists a new pending action and nudges the coordinator.
func (s *Service) Enqueue(ctx context.Context, in EnqueueInput) (*action.Action, error) {
	kind := strings.TrimSpace(in.Kind)
	endpoint := strings.TrimSpace(in.Endpoint)
	if kind == "" {
		return nil, fmt.Errorf("kind is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodPost
	}

	a := action.New(s.node.GenerateID(), kind, in.Payload, endpoint, method, strings.TrimSpace(in.SyncTag))
	if err := s.store.Append(ctx, a); err != nil {
		return nil, fmt.Errorf("append action: %w", err)
	}

	s.logger.Info("action_enqueued",
		zap.Int64("action_id", a.ID),
		zap.String("kind", a.Kind),
		zap.String("sync_tag", a.SyncTag),
	)

	s.coord.Kick()
	return a, nil
}

// Discard removes a pending or failed action. Discarding an unknown ID is a
// no-op, and in-flight actions cannot be cancelled; both return nil.
func (s *Service) Discard(ctx context.Context, id int64) error {
	a, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return nil
	}
	if a.Status == action.StatusInFlight || s.coord.InFlight(id) {
		return nil
	}

	if err := s.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove action: %w", err)
	}

	s.logger.Info("action_discarded", zap.Int64("action_id", id))
	return nil
}

// Retry resets a failed action back to pending with a fresh attempt budget.
func (s *Service) Retry(ctx context.Context, id int64) error {
	a, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return action.ErrNotFound
	}
	if a.Status != action.StatusFailed {
		return action.ErrInvalidState
	}

	if err := s.store.Update(ctx, id, func(cur *action.Action) {
		_ = cur.ResetForRetry()
	}); err != nil {
		return fmt.Errorf("reset action: %w", err)
	}

	s.logger.Info("action_retry_requested", zap.Int64("action_id", id))
	s.coord.Kick()
	return nil
}

// Snapshot returns all queued actions in enqueue order, optionally filtered
// by status.
func (s *Service) Snapshot(ctx context.Context, status action.Status) ([]*action.Action, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}

	filtered := make([]*action.Action, 0, len(all))
	for _, a := range all {
		if a.Status == status {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// Stats summarises queue depth for pending-count indicators.
type Stats struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	st.Total = len(all)
	for _, a := range all {
		switch a.Status {
		case action.StatusPending:
			st.Pending++
		case action.StatusInFlight:
			st.InFlight++
		case action.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

// SubscribeCompletion forwards terminal-state events from the coordinator.
func (s *Service) SubscribeCompletion(fn func(id int64, outcome action.Outcome)) func() {
	return s.coord.SubscribeCompletion(fn)
}

func (s *Service) find(ctx context.Context, id int64) (*action.Action, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}
