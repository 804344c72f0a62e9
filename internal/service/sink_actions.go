package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kubilitics/kubilitics-knative/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/validate"
	"github.com/kubilitics/kubilitics-knative/internal/sink"
	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

type mutateFunc func(source, target *unstructured.Unstructured) (*unstructured.Unstructured, error)

func (s *topologyService) SetSink(ctx context.Context, namespace string, req LinkRequest) (*unstructured.Unstructured, error) {
	return s.link(ctx, "sink.set", namespace, req, true, sink.CreateEventSourceSink)
}

func (s *topologyService) SetSubscriber(ctx context.Context, namespace string, req LinkRequest) (*unstructured.Unstructured, error) {
	return s.link(ctx, "sink.subscriber", namespace, req, true, sink.CreateEventingPubSubSink)
}

func (s *topologyService) SetKafkaConnection(ctx context.Context, namespace string, req LinkRequest) (*unstructured.Unstructured, error) {
	return s.link(ctx, "sink.kafka_connection", namespace, req, false, sink.CreateEventSourceKafkaConnection)
}

// link reads the source and target, applies mutate and writes the source
// back. allowURI lets a bare URI stand in for the target.
func (s *topologyService) link(ctx context.Context, op, namespace string, req LinkRequest, allowURI bool, mutate mutateFunc) (*unstructured.Unstructured, error) {
	if !validate.Namespace(namespace) {
		return nil, fmt.Errorf("%w: namespace %q", ErrInvalidReference, namespace)
	}
	ctx, span := tracing.StartSpan(ctx, op,
		attribute.String("k8s.namespace", namespace),
		attribute.String("source.kind", req.Source.Kind),
		attribute.String("source.name", req.Source.Name))
	defer span.End()

	updated, err := s.applyLink(ctx, namespace, req, allowURI, mutate)
	tracing.RecordError(span, err)
	if err != nil {
		return nil, err
	}
	s.Invalidate(namespace)
	s.logger.Info("resource relinked", "op", op, "namespace", namespace,
		"kind", updated.GetKind(), "name", updated.GetName())
	return updated, nil
}

func (s *topologyService) applyLink(ctx context.Context, namespace string, req LinkRequest, allowURI bool, mutate mutateFunc) (*unstructured.Unstructured, error) {
	var sourceGVR schema.GroupVersionResource
	var source *unstructured.Unstructured
	if !req.Source.IsZero() {
		gvr, err := s.resolve(req.Source)
		if err != nil {
			return nil, err
		}
		if source, err = s.client.Get(ctx, gvr, namespace, req.Source.Name); err != nil {
			return nil, err
		}
		sourceGVR = gvr
	}

	var target *unstructured.Unstructured
	switch {
	case req.Target != nil && !req.Target.IsZero():
		gvr, err := s.resolve(*req.Target)
		if err != nil {
			return nil, err
		}
		if target, err = s.client.Get(ctx, gvr, namespace, req.Target.Name); err != nil {
			return nil, err
		}
	case allowURI && req.URI != "":
		target = topology.NewSinkURIResource(req.URI, namespace)
	}

	updated, err := mutate(source, target)
	if err != nil {
		return nil, err
	}
	return s.client.Update(ctx, sourceGVR, updated)
}

// resolve maps ref to the resource to read, using the version of the ref.
func (s *topologyService) resolve(ref ResourceRef) (schema.GroupVersionResource, error) {
	if !validate.APIVersion(ref.APIVersion) || !validate.Kind(ref.Kind) || !validate.Name(ref.Name) {
		return schema.GroupVersionResource{}, fmt.Errorf("%w: %s %s %q", ErrInvalidReference, ref.APIVersion, ref.Kind, ref.Name)
	}
	gv, err := schema.ParseGroupVersion(ref.APIVersion)
	if err != nil {
		return schema.GroupVersionResource{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	m, ok := s.builder.Registry().ModelFor(gv.Group, ref.Kind)
	if !ok {
		return schema.GroupVersionResource{}, fmt.Errorf("%w: %s/%s", ErrUnknownKind, gv.Group, ref.Kind)
	}
	return gv.WithResource(m.Resource), nil
}
