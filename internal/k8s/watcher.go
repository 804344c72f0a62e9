package k8s

import (
	"context"
	"log/slog"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

// ChangeFunc is called with the namespace whose resources changed.
type ChangeFunc func(namespace string)

// Watcher runs dynamic informers for every role and reports changed
// namespaces. Bursts of events in one namespace within the debounce window
// collapse into a single call.
type Watcher struct {
	factory  dynamicinformer.DynamicSharedInformerFactory
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*debounced
	stopped bool
}

// debounced is the pending change report of one namespace.
type debounced struct {
	timer *time.Timer
}

// NewWatcher builds informers over dyn. resync is the informer resync
// period; debounce the quiet period before onChange fires.
func NewWatcher(dyn dynamic.Interface, resync, debounce time.Duration, onChange ChangeFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		factory:  dynamicinformer.NewFilteredDynamicSharedInformerFactory(dyn, resync, metav1.NamespaceAll, nil),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		pending:  map[string]*debounced{},
	}
}

// Start registers an informer per registry role and runs them until ctx is
// done. It does not wait for the caches to sync: kinds that are not
// installed would never sync.
func (w *Watcher) Start(ctx context.Context, registry *topology.Registry) error {
	handler := cache.ResourceEventHandlerFuncs{
		AddFunc:    w.handle,
		UpdateFunc: func(_, newObj interface{}) { w.handle(newObj) },
		DeleteFunc: w.handle,
	}
	for role, model := range registry.Models() {
		informer := w.factory.ForResource(model.GVR()).Informer()
		if _, err := informer.AddEventHandler(handler); err != nil {
			return err
		}
		w.logger.Debug("watching", "role", role, "resource", model.GVR().String())
	}
	w.factory.Start(ctx.Done())
	go func() {
		<-ctx.Done()
		w.stop()
	}()
	return nil
}

func (w *Watcher) handle(obj interface{}) {
	key, err := cache.DeletionHandlingMetaNamespaceKeyFunc(obj)
	if err != nil {
		return
	}
	namespace, _, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		return
	}
	w.schedule(namespace)
}

func (w *Watcher) schedule(namespace string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	// A timer that can no longer be stopped has fired; its callback may be
	// waiting on mu, so it is replaced rather than re-armed.
	if d, ok := w.pending[namespace]; ok && d.timer.Stop() {
		d.timer.Reset(w.debounce)
		return
	}
	d := &debounced{}
	w.pending[namespace] = d
	d.timer = time.AfterFunc(w.debounce, func() { w.fire(namespace, d) })
}

// fire reports namespace unless d was superseded by a later event, whose
// own timer reports it instead.
func (w *Watcher) fire(namespace string, d *debounced) {
	w.mu.Lock()
	if w.stopped || w.pending[namespace] != d {
		w.mu.Unlock()
		return
	}
	delete(w.pending, namespace)
	w.mu.Unlock()
	w.onChange(namespace)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for ns, d := range w.pending {
		d.timer.Stop()
		delete(w.pending, ns)
	}
	w.mu.Unlock()
	w.factory.Shutdown()
}
