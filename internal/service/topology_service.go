package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/topologycache"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/validate"
	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

var (
	// ErrUnknownKind is returned for references to kinds the registry does not know.
	ErrUnknownKind = errors.New("unknown resource kind")
	// ErrInvalidReference is returned for malformed references.
	ErrInvalidReference = errors.New("invalid resource reference")
	// ErrUnknownDomain is returned for an unsupported domain selector.
	ErrUnknownDomain = errors.New("unknown topology domain")
)

// ResourceRef names a resource in the request namespace.
type ResourceRef struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
}

// IsZero reports whether no field is set.
func (r ResourceRef) IsZero() bool {
	return r.APIVersion == "" && r.Kind == "" && r.Name == ""
}

// LinkRequest connects Source to either Target or a bare URI.
type LinkRequest struct {
	Source ResourceRef  `json:"source"`
	Target *ResourceRef `json:"target,omitempty"`
	URI    string       `json:"uri,omitempty"`
}

// Collector produces a Resources snapshot of one namespace.
type Collector interface {
	Collect(ctx context.Context, namespace string) (models.Resources, error)
}

// ResourceClient reads and writes single cluster resources.
type ResourceClient interface {
	Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error)
	Update(ctx context.Context, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
}

// TopologyService builds Knative topologies and rewires sinks.
type TopologyService interface {
	GetTopology(ctx context.Context, namespace string, domain models.Domain) (*models.Model, error)
	Invalidate(namespace string)
	SetSink(ctx context.Context, namespace string, req LinkRequest) (*unstructured.Unstructured, error)
	SetSubscriber(ctx context.Context, namespace string, req LinkRequest) (*unstructured.Unstructured, error)
	SetKafkaConnection(ctx context.Context, namespace string, req LinkRequest) (*unstructured.Unstructured, error)
}

type topologyService struct {
	collector   Collector
	client      ResourceClient
	builder     *topology.Builder
	cache       *topologycache.Cache
	kubeContext string
	logger      *slog.Logger
}

// NewTopologyService wires a service. cache may be nil.
func NewTopologyService(collector Collector, client ResourceClient, builder *topology.Builder, cache *topologycache.Cache, kubeContext string, logger *slog.Logger) TopologyService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &topologyService{
		collector:   collector,
		client:      client,
		builder:     builder,
		cache:       cache,
		kubeContext: kubeContext,
		logger:      logger,
	}
}

// ParseDomain maps a query value to a Domain; empty means all.
func ParseDomain(s string) (models.Domain, error) {
	d := models.Domain(s)
	if d == "" {
		return models.DomainAll, nil
	}
	if d == models.DomainAll {
		return d, nil
	}
	for _, known := range models.Domains {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

func (s *topologyService) GetTopology(ctx context.Context, namespace string, domain models.Domain) (*models.Model, error) {
	if !validate.Namespace(namespace) {
		return nil, fmt.Errorf("%w: namespace %q", ErrInvalidReference, namespace)
	}
	top, err := s.topology(ctx, namespace)
	if err != nil {
		return nil, err
	}
	model, ok := top.Domain(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return &model, nil
}

func (s *topologyService) topology(ctx context.Context, namespace string) (*models.Topology, error) {
	if s.cache != nil {
		if top, ok := s.cache.Get(s.kubeContext, namespace); ok {
			return top, nil
		}
	}

	ctx, span := tracing.StartSpan(ctx, "topology.build", attribute.String("k8s.namespace", namespace))
	defer span.End()

	start := time.Now()
	res, err := s.collector.Collect(ctx, namespace)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to collect resources: %w", err)
	}
	top := s.builder.Build(res)
	metrics.TopologyBuildDurationSeconds.Observe(time.Since(start).Seconds())

	for _, d := range models.Domains {
		m, _ := top.Domain(d)
		metrics.TopologyGraphNodes.WithLabelValues(string(d)).Set(float64(len(m.Nodes)))
		metrics.TopologyGraphEdges.WithLabelValues(string(d)).Set(float64(len(m.Edges)))
	}
	s.logger.Debug("topology built", "namespace", namespace, "duration", time.Since(start))

	if s.cache != nil {
		s.cache.Set(s.kubeContext, namespace, &top)
	}
	return &top, nil
}

func (s *topologyService) Invalidate(namespace string) {
	if s.cache != nil {
		s.cache.InvalidateNamespace(s.kubeContext, namespace)
	}
}
