package action

import (
	"encoding/json"
	"errors"
	"time"
)

// Status represents the lifecycle state of a queued action.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var (
	ErrNotFound     = errors.New("action not found")
	ErrInvalidState = errors.New("invalid action state for operation")
)

// Action is the core domain entity: a single deferred operation awaiting
// execution against an upstream endpoint. It contains no database tags or
// infrastructure details.
type Action struct {
	ID       int64           `json:"id,string"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Endpoint string          `json:"endpoint"`
	Method   string          `json:"method"`

	// SyncTag serializes related actions: at most one action per non-empty
	// tag may be in flight, and tagged actions execute in enqueue order.
	SyncTag string `json:"sync_tag,omitempty"`

	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// New creates a pending action. The ID is assigned by the caller so it stays
// stable across reloads.
func New(id int64, kind string, payload json.RawMessage, endpoint, method, syncTag string) *Action {
	now := time.Now().UTC()
	return &Action{
		ID:         id,
		Kind:       kind,
		Payload:    payload,
		Endpoint:   endpoint,
		Method:     method,
		SyncTag:    syncTag,
		Status:     StatusPending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
}

// MarkInFlight transitions the action to in_flight, counting the attempt.
func (a *Action) MarkInFlight() {
	a.Status = StatusInFlight
	a.Attempts++
	a.NextAttemptAt = nil
	a.UpdatedAt = time.Now().UTC()
}

// MarkSucceeded transitions the action to its terminal success state.
func (a *Action) MarkSucceeded() {
	a.Status = StatusSucceeded
	a.LastError = ""
	a.UpdatedAt = time.Now().UTC()
}

// MarkRetry returns the action to pending after a retryable failure, with the
// next dispatch deferred until nextAttempt.
func (a *Action) MarkRetry(reason string, nextAttempt time.Time) {
	a.Status = StatusPending
	a.LastError = reason
	a.NextAttemptAt = &nextAttempt
	a.UpdatedAt = time.Now().UTC()
}

// MarkInterrupted returns an in_flight action to pending after a process
// restart. The attempt already counted stands; its outcome was never
// observed. No-op for any other status.
func (a *Action) MarkInterrupted() {
	if a.Status != StatusInFlight {
		return
	}
	a.Status = StatusPending
	a.NextAttemptAt = nil
	a.UpdatedAt = time.Now().UTC()
}

// MarkFailed transitions the action to its terminal failure state.
func (a *Action) MarkFailed(reason string) {
	a.Status = StatusFailed
	a.LastError = reason
	a.NextAttemptAt = nil
	a.UpdatedAt = time.Now().UTC()
}

// ResetForRetry clears a failed action back to pending on explicit user
// request. Attempts restart from zero.
func (a *Action) ResetForRetry() error {
	if a.Status != StatusFailed {
		return ErrInvalidState
	}
	a.Status = StatusPending
	a.Attempts = 0
	a.LastError = ""
	a.NextAttemptAt = nil
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Terminal reports whether no further automatic transition occurs.
func (a *Action) Terminal() bool {
	return a.Status == StatusSucceeded || a.Status == StatusFailed
}

// Eligible reports whether the action may be dispatched at the given instant.
// Tag-level exclusion is the coordinator's concern, not the entity's.
func (a *Action) Eligible(now time.Time) bool {
	if a.Status != StatusPending {
		return false
	}
	return a.NextAttemptAt == nil || !a.NextAttemptAt.After(now)
}
