package k8s

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestIsRetryable(t *testing.T) {
	gr := schema.GroupResource{Group: "serving.knative.dev", Resource: "services"}
	assert.True(t, isRetryable(apierrors.NewTooManyRequests("slow down", 1)))
	assert.True(t, isRetryable(apierrors.NewInternalError(errors.New("boom"))))
	assert.True(t, isRetryable(apierrors.NewServiceUnavailable("down")))
	assert.False(t, isRetryable(apierrors.NewNotFound(gr, "x")))
	assert.False(t, isRetryable(apierrors.NewForbidden(gr, "x", errors.New("no"))))
	assert.False(t, isRetryable(errors.New("plain")))
	assert.False(t, isRetryable(nil))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(0))
	assert.Equal(t, 300*time.Millisecond, backoff(1))
	assert.Equal(t, 900*time.Millisecond, backoff(2))
	assert.Equal(t, maxBackoff, backoff(3))
	assert.Equal(t, maxBackoff, backoff(10))
}

func TestDoWithRetryValue(t *testing.T) {
	ctx := context.Background()

	calls := 0
	v, err := doWithRetryValue(ctx, 3, func() (string, error) {
		calls++
		if calls < 2 {
			return "", apierrors.NewTooManyRequests("slow down", 0)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)

	calls = 0
	_, err = doWithRetryValue(ctx, 3, func() (int, error) {
		calls++
		return 0, errors.New("bad request")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors are not retried")
}

func TestDoWithRetryValueHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := doWithRetryValue(ctx, 3, func() (int, error) {
		return 0, apierrors.NewServiceUnavailable("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
