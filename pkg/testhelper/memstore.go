package testhelper

import (
	"context"
	"sync"

	"github.com/syncwavelabs/syncwave/internal/domain/action"
)

// MemStore is a simple in-memory action.Store for testing. It preserves
// enqueue order like the real stores.
type MemStore struct {
	mu      sync.Mutex
	actions []*action.Action
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Load(ctx context.Context) ([]*action.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAll(m.actions), nil
}

func (m *MemStore) Append(ctx context.Context, a *action.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.actions = append(m.actions, &cp)
	return nil
}

func (m *MemStore) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.actions {
		if a.ID == id {
			m.actions = append(m.actions[:i], m.actions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemStore) Update(ctx context.Context, id int64, mutate func(*action.Action)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.actions {
		if a.ID == id {
			mutate(a)
			return nil
		}
	}
	return nil
}

func (m *MemStore) ListByStatus(ctx context.Context, statuses []action.Status, limit int) ([]*action.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[action.Status]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}

	var out []*action.Action
	for _, a := range m.actions {
		if _, ok := want[a.Status]; !ok {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func copyAll(in []*action.Action) []*action.Action {
	out := make([]*action.Action, 0, len(in))
	for _, a := range in {
		cp := *a
		out = append(out, &cp)
	}
	return out
}
