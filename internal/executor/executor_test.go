package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/internal/executor"
	"github.com/syncwavelabs/syncwave/pkg/syncclient"
	"go.uber.org/zap"
)

func newClient(baseURL string) *syncclient.Client {
	return syncclient.New(syncclient.Config{
		BaseURL:    baseURL,
		HealthPath: "/health",
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		RateBurst:  1000,
	})
}

func testAction() *action.Action {
	return action.New(1, "submit-form", []byte(`{"field":"value"}`), "/forms", "POST", "")
}

func TestExecute_SuccessOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/forms", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	e := executor.NewHTTPExecutor(newClient(srv.URL), zap.NewNop())
	outcome := e.Execute(context.Background(), testAction())
	assert.Equal(t, action.OutcomeSuccess, outcome.Kind)
}

func TestExecute_RetryableOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := executor.NewHTTPExecutor(newClient(srv.URL), zap.NewNop())
	outcome := e.Execute(context.Background(), testAction())
	assert.Equal(t, action.OutcomeRetryableFailure, outcome.Kind)
	assert.Contains(t, outcome.Reason, "502")
}

func TestExecute_PermanentOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	e := executor.NewHTTPExecutor(newClient(srv.URL), zap.NewNop())
	outcome := e.Execute(context.Background(), testAction())
	assert.Equal(t, action.OutcomePermanentFailure, outcome.Kind)
}

func TestExecute_RateLimitedCarriesRetryAfterHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := executor.NewHTTPExecutor(newClient(srv.URL), zap.NewNop())
	outcome := e.Execute(context.Background(), testAction())
	assert.Equal(t, action.OutcomeRetryableFailure, outcome.Kind)
	assert.Equal(t, 30*time.Second, outcome.RetryAfter)
}

func TestExecute_TransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	e := executor.NewHTTPExecutor(newClient(srv.URL), zap.NewNop())
	outcome := e.Execute(context.Background(), testAction())
	assert.Equal(t, action.OutcomeRetryableFailure, outcome.Kind)
	assert.NotEmpty(t, outcome.Reason)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		result *syncclient.Result
		want   action.OutcomeKind
	}{
		{"ok", &syncclient.Result{StatusCode: 200}, action.OutcomeSuccess},
		{"created", &syncclient.Result{StatusCode: 201}, action.OutcomeSuccess},
		{"rate limited", &syncclient.Result{StatusCode: 429}, action.OutcomeRetryableFailure},
		{"server error", &syncclient.Result{StatusCode: 500}, action.OutcomeRetryableFailure},
		{"unavailable", &syncclient.Result{StatusCode: 503}, action.OutcomeRetryableFailure},
		{"bad request", &syncclient.Result{StatusCode: 400}, action.OutcomePermanentFailure},
		{"conflict", &syncclient.Result{StatusCode: 409}, action.OutcomePermanentFailure},
		{"redirect", &syncclient.Result{StatusCode: 302}, action.OutcomeRetryableFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, executor.Classify(tc.result).Kind)
		})
	}
}

func TestProbe(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newClient(srv.URL)
	require.NoError(t, client.Probe(context.Background()))

	healthy = false
	assert.Error(t, client.Probe(context.Background()))
}
