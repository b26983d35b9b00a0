package testhelper

import (
	"context"
	"sync"

	"github.com/syncwavelabs/syncwave/internal/domain/action"
)

// MockExecutor is a scripted action.Executor for testing. Outcomes can be set
// per action kind; unscripted kinds succeed.
type MockExecutor struct {
	mu       sync.Mutex
	byKind   map[string][]action.Outcome
	executed []int64
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		byKind: make(map[string][]action.Outcome),
	}
}

// Script queues outcomes for the given kind, consumed in order. The last
// outcome repeats once the script is exhausted.
func (m *MockExecutor) Script(kind string, outcomes ...action.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKind[kind] = append(m.byKind[kind], outcomes...)
}

// Execute records the call and returns the next scripted outcome.
func (m *MockExecutor) Execute(ctx context.Context, a *action.Action) action.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executed = append(m.executed, a.ID)

	script, ok := m.byKind[a.Kind]
	if !ok || len(script) == 0 {
		return action.Success()
	}

	outcome := script[0]
	if len(script) > 1 {
		m.byKind[a.Kind] = script[1:]
	}
	return outcome
}

// Executed returns action IDs in dispatch order.
func (m *MockExecutor) Executed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.executed))
	copy(out, m.executed)
	return out
}
