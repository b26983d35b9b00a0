package action

import (
	"context"
	"time"
)

// OutcomeKind classifies the result of one execution attempt.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeRetryableFailure OutcomeKind = "retryable_failure"
	OutcomePermanentFailure OutcomeKind = "permanent_failure"
)

// Outcome is the classified result of executing an action once.
type Outcome struct {
	Kind   OutcomeKind
	Reason string

	// RetryAfter is a server-supplied backoff hint (e.g. from a 429
	// Retry-After header). Zero means no hint.
	RetryAfter time.Duration
}

// Executor performs exactly one action against its endpoint and classifies
// the result. Executing the same action more than once must be safe from the
// executor's side; idempotency of the remote effect is the enqueuer's
// contract via the Kind/Payload design.
type Executor interface {
	Execute(ctx context.Context, a *Action) Outcome
}

func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

func Retryable(reason string) Outcome {
	return Outcome{Kind: OutcomeRetryableFailure, Reason: reason}
}

func RetryableAfter(reason string, after time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetryableFailure, Reason: reason, RetryAfter: after}
}

func Permanent(reason string) Outcome {
	return Outcome{Kind: OutcomePermanentFailure, Reason: reason}
}
