package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubilitics/kubilitics-knative/internal/pkg/tracing"
)

// Client wraps the dynamic and apiextensions clients of one kube context.
// Every call goes through the rate limiter, timeout, circuit breaker and
// retry on 5xx/429.
type Client struct {
	Dynamic       dynamic.Interface
	APIExtensions apiextensionsclientset.Interface
	Config        *rest.Config
	Context       string
	// Timeout bounds each call; zero leaves only the caller's deadline.
	Timeout time.Duration

	limiter        *rate.Limiter
	circuitBreaker *CircuitBreaker
	maxAttempts    int

	healthMu        sync.RWMutex
	lastSuccessTime time.Time
	lastError       error
}

// NewClient builds a client from kubeconfigPath and kubeContext. With no
// path, in-cluster config is tried first, then ~/.kube/config.
func NewClient(kubeconfigPath, kubeContext string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			if homeDir, _ := os.UserHomeDir(); homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}
	if config == nil {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
			&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	extClient, err := apiextensionsclientset.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create apiextensions client: %w", err)
	}

	c := NewClientFromInterfaces(dynamicClient, extClient, kubeContext)
	c.Config = config
	return c, nil
}

// NewClientFromInterfaces wraps existing clients, e.g. fakes in tests.
func NewClientFromInterfaces(dyn dynamic.Interface, ext apiextensionsclientset.Interface, kubeContext string) *Client {
	return &Client{
		Dynamic:         dyn,
		APIExtensions:   ext,
		Context:         kubeContext,
		circuitBreaker:  NewCircuitBreaker(kubeContext),
		maxAttempts:     defaultRetryAttempts,
		lastSuccessTime: time.Now(),
	}
}

// SetTimeout bounds every call to d; zero disables the bound.
func (c *Client) SetTimeout(d time.Duration) {
	c.Timeout = d
}

// SetLimiter throttles calls through l.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withTimeout applies c.Timeout when set.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

func (c *Client) resource(gvr schema.GroupVersionResource, namespace string) dynamic.ResourceInterface {
	if namespace == "" {
		return c.Dynamic.Resource(gvr)
	}
	return c.Dynamic.Resource(gvr).Namespace(namespace)
}

// call runs fn under the limiter, timeout, breaker and retry policy and
// records the outcome for health reporting.
func call[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := c.waitRateLimit(ctx); err != nil {
		return zero, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var out T
	err := c.circuitBreaker.Execute(ctx, func() error {
		v, err := doWithRetryValue(ctx, c.maxAttempts, func() (T, error) { return fn(ctx) })
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	c.recordResult(err)
	if err != nil {
		return zero, err
	}
	return out, nil
}

// List lists gvr in namespace ("" for all namespaces).
func (c *Client) List(ctx context.Context, gvr schema.GroupVersionResource, namespace string) (*unstructured.UnstructuredList, error) {
	ctx, span := tracing.StartSpan(ctx, "k8s.list",
		attribute.String("k8s.resource", gvr.String()),
		attribute.String("k8s.namespace", namespace))
	defer span.End()

	list, err := call(ctx, c, func(ctx context.Context) (*unstructured.UnstructuredList, error) {
		return c.resource(gvr, namespace).List(ctx, metav1.ListOptions{})
	})
	tracing.RecordError(span, err)
	return list, err
}

// Get fetches one object.
func (c *Client) Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error) {
	ctx, span := tracing.StartSpan(ctx, "k8s.get",
		attribute.String("k8s.resource", gvr.String()),
		attribute.String("k8s.namespace", namespace),
		attribute.String("k8s.name", name))
	defer span.End()

	obj, err := call(ctx, c, func(ctx context.Context) (*unstructured.Unstructured, error) {
		return c.resource(gvr, namespace).Get(ctx, name, metav1.GetOptions{})
	})
	tracing.RecordError(span, err)
	return obj, err
}

// Update writes obj back; its resourceVersion guards against lost updates.
func (c *Client) Update(ctx context.Context, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	ctx, span := tracing.StartSpan(ctx, "k8s.update",
		attribute.String("k8s.resource", gvr.String()),
		attribute.String("k8s.namespace", obj.GetNamespace()),
		attribute.String("k8s.name", obj.GetName()))
	defer span.End()

	updated, err := call(ctx, c, func(ctx context.Context) (*unstructured.Unstructured, error) {
		return c.resource(gvr, obj.GetNamespace()).Update(ctx, obj, metav1.UpdateOptions{})
	})
	tracing.RecordError(span, err)
	return updated, err
}

func (c *Client) recordResult(err error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if err == nil {
		c.lastSuccessTime = time.Now()
		c.lastError = nil
		return
	}
	c.lastError = err
}

// Health reports the last successful call time, the last error and the
// breaker state.
func (c *Client) Health() (lastSuccess time.Time, lastErr error, state CircuitBreakerState) {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.lastSuccessTime, c.lastError, c.circuitBreaker.State()
}
