package k8s

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-knative/internal/pkg/metrics"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open: cluster API unavailable")

// CircuitBreakerState is the breaker state; values match the state gauge.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker fails fast after failureThreshold consecutive transient
// failures against one kube context. After openDuration it lets a single
// probe call through.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration
	kubeContext      string
	now              func() time.Time

	state        CircuitBreakerState
	failures     int
	openedAt     time.Time
	probeRunning bool
}

// NewCircuitBreaker returns a closed breaker: 5 failures open it for 30s.
func NewCircuitBreaker(kubeContext string) *CircuitBreaker {
	metrics.CircuitBreakerState.WithLabelValues(kubeContext).Set(float64(StateClosed))
	return &CircuitBreaker{
		failureThreshold: 5,
		openDuration:     30 * time.Second,
		kubeContext:      kubeContext,
		now:              time.Now,
	}
}

func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	if cb.state == to {
		return
	}
	metrics.CircuitBreakerTransitionsTotal.WithLabelValues(cb.kubeContext, cb.state.String(), to.String()).Inc()
	metrics.CircuitBreakerState.WithLabelValues(cb.kubeContext).Set(float64(to))
	cb.state = to
}

// admit decides whether a call may run. probe is true for the half-open trial call.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.openDuration {
		cb.transition(StateHalfOpen)
	}
	switch cb.state {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probeRunning {
			return false, ErrCircuitOpen
		}
		cb.probeRunning = true
		return true, nil
	}
	return false, nil
}

// Execute runs fn unless the breaker is open. Only transient errors count
// as failures; NotFound, Forbidden and friends reset the streak.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probeRunning = false
	}

	if err == nil {
		cb.failures = 0
		cb.transition(StateClosed)
		return nil
	}
	if !isTransient(err) {
		cb.failures = 0
		if probe {
			cb.transition(StateClosed)
		}
		return err
	}

	cb.failures++
	metrics.CircuitBreakerFailuresTotal.WithLabelValues(cb.kubeContext).Inc()
	if probe || cb.failures >= cb.failureThreshold {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current streak of transient failures.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

var networkErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"dial tcp",
	"unreachable",
	"timeout",
}

// isTransient reports whether err looks like an outage rather than a
// rejected request.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || isRetryable(err) {
		return true
	}
	msg := err.Error()
	for _, m := range networkErrorMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
