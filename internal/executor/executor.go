package executor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/pkg/syncclient"
	"go.uber.org/zap"
)

// HTTPExecutor performs queued actions against their upstream endpoints and
// classifies the outcome. Network-level errors and 5xx are retryable, 429 is
// retryable with a backoff hint, any other 4xx is permanent.
type HTTPExecutor struct {
	client *syncclient.Client
	logger *zap.Logger
}

func NewHTTPExecutor(client *syncclient.Client, logger *zap.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		client: client,
		logger: logger.Named("executor"),
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, a *action.Action) action.Outcome {
	result, err := e.client.Send(ctx, a.Method, a.Endpoint, a.Payload)
	if err != nil {
		reason := err.Error()
		if syncclient.IsBreakerOpen(err) {
			reason = "circuit breaker open"
		}
		e.logger.Warn("dispatch_transport_failed",
			zap.Error(err),
			zap.Int64("action_id", a.ID),
			zap.String("kind", a.Kind),
		)
		return action.Retryable(reason)
	}

	return Classify(result)
}

// Classify maps an upstream response to an outcome.
func Classify(result *syncclient.Result) action.Outcome {
	switch {
	case result.StatusCode >= 200 && result.StatusCode < 300:
		return action.Success()
	case result.StatusCode == http.StatusTooManyRequests:
		return action.RetryableAfter(
			fmt.Sprintf("upstream rate limited (%d)", result.StatusCode),
			result.RetryAfter,
		)
	case result.StatusCode >= 500:
		return action.Retryable(fmt.Sprintf("upstream server error (%d)", result.StatusCode))
	case result.StatusCode >= 400:
		return action.Permanent(fmt.Sprintf("upstream rejected request (%d)", result.StatusCode))
	default:
		return action.Retryable(fmt.Sprintf("unexpected upstream status (%d)", result.StatusCode))
	}
}
