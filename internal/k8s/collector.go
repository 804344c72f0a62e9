package k8s

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

const maxConcurrentLists = 8

// Collector lists every role of a registry in one namespace and returns a
// Resources snapshot.
type Collector struct {
	client   *Client
	registry *topology.Registry
	logger   *slog.Logger
}

// NewCollector returns a collector reading through client.
func NewCollector(client *Client, registry *topology.Registry, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{client: client, registry: registry, logger: logger}
}

// Collect lists all roles concurrently. A kind whose API is not served
// yields an empty loaded collection. Any other list failure leaves the
// collection unloaded with LoadError set; the snapshot is still returned.
// Only cancellation of ctx is reported as an error.
func (c *Collector) Collect(ctx context.Context, namespace string) (models.Resources, error) {
	ctx, span := tracing.StartSpan(ctx, "collector.collect", attribute.String("k8s.namespace", namespace))
	defer span.End()

	var (
		mu  sync.Mutex
		res = models.Resources{}
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLists)
	for role, model := range c.registry.Models() {
		g.Go(func() error {
			coll := c.collectRole(gCtx, role, model, namespace)
			mu.Lock()
			res[role] = coll
			mu.Unlock()
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

func (c *Collector) collectRole(ctx context.Context, role string, model topology.KindModel, namespace string) *models.ResourceCollection {
	list, err := c.client.List(ctx, model.GVR(), namespace)
	switch {
	case err == nil:
		items := list.Items
		if items == nil {
			items = []unstructured.Unstructured{}
		}
		return &models.ResourceCollection{Loaded: true, Data: items}
	case apierrors.IsNotFound(err):
		c.logger.Debug("resource not served", "role", role, "resource", model.GVR().String())
		return &models.ResourceCollection{Loaded: true, Data: []unstructured.Unstructured{}}
	default:
		metrics.CollectorListErrorsTotal.WithLabelValues(role).Inc()
		c.logger.Warn("list failed", "role", role, "namespace", namespace, "error", err)
		return &models.ResourceCollection{Loaded: false, LoadError: err.Error()}
	}
}
