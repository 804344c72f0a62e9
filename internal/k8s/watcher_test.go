package k8s

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

type changeRecorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *changeRecorder) record(ns string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[ns]++
}

func (r *changeRecorder) count(ns string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[ns]
}

func TestWatcherReportsChangedNamespace(t *testing.T) {
	registry := topology.NewRegistry()
	dyn := newFakeDynamic(registry)
	rec := &changeRecorder{calls: map[string]int{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWatcher(dyn, 0, 20*time.Millisecond, rec.record, nil)
	require.NoError(t, w.Start(ctx, registry))

	model := topology.FixedRoleModels[topology.RoleBrokers]
	_, err := dyn.Resource(model.GVR()).Namespace(testNamespace).Create(ctx,
		newObj("eventing.knative.dev/v1", "Broker", testNamespace, "default"), metav1.CreateOptions{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return rec.count(testNamespace) >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, rec.count("other"))
}

func TestWatcherDebounces(t *testing.T) {
	rec := &changeRecorder{calls: map[string]int{}}
	w := NewWatcher(newFakeDynamic(topology.NewRegistry()), 0, 50*time.Millisecond, rec.record, nil)

	for i := 0; i < 5; i++ {
		w.schedule(testNamespace)
	}
	assert.Eventually(t, func() bool { return rec.count(testNamespace) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count(testNamespace))
}

func TestWatcherReplacesFiredTimer(t *testing.T) {
	rec := &changeRecorder{calls: map[string]int{}}
	w := NewWatcher(newFakeDynamic(topology.NewRegistry()), 0, 50*time.Millisecond, rec.record, nil)

	w.schedule(testNamespace)
	w.mu.Lock()
	fired := w.pending[testNamespace]
	w.mu.Unlock()
	// Stopping it makes the timer look expired to the next schedule call.
	require.True(t, fired.timer.Stop())

	w.schedule(testNamespace)
	w.mu.Lock()
	replacement := w.pending[testNamespace]
	w.mu.Unlock()
	assert.NotSame(t, fired, replacement)

	// The late callback of the first timer must not report the burst.
	w.fire(testNamespace, fired)
	assert.Zero(t, rec.count(testNamespace))

	assert.Eventually(t, func() bool { return rec.count(testNamespace) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count(testNamespace))
}

func TestWatcherStopDropsPending(t *testing.T) {
	rec := &changeRecorder{calls: map[string]int{}}
	w := NewWatcher(newFakeDynamic(topology.NewRegistry()), 0, 20*time.Millisecond, rec.record, nil)

	w.schedule(testNamespace)
	w.stop()
	w.schedule(testNamespace)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, rec.count(testNamespace))
}
