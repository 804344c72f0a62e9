package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/kubilitics/kubilitics-knative/internal/k8s"
	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/topologycache"
	"github.com/kubilitics/kubilitics-knative/internal/sink"
	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

const ns = "demo"

func obj(apiVersion, kind, name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion(apiVersion)
	u.SetKind(kind)
	u.SetNamespace(ns)
	u.SetName(name)
	u.SetUID(types.UID(kind + "/" + name))
	return u
}

type countingCollector struct {
	inner Collector
	calls atomic.Int32
}

func (c *countingCollector) Collect(ctx context.Context, namespace string) (models.Resources, error) {
	c.calls.Add(1)
	return c.inner.Collect(ctx, namespace)
}

type fixture struct {
	svc       TopologyService
	dyn       *dynamicfake.FakeDynamicClient
	collector *countingCollector
	cache     *topologycache.Cache
}

func newFixture(t *testing.T, objs ...runtime.Object) *fixture {
	t.Helper()
	registry := topology.NewRegistry()
	kinds := map[schema.GroupVersionResource]string{}
	for _, m := range registry.Models() {
		kinds[m.GVR()] = m.GVK.Kind + "List"
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), kinds, objs...)
	client := k8s.NewClientFromInterfaces(dyn, nil, "test")
	collector := &countingCollector{inner: k8s.NewCollector(client, registry, nil)}
	cache := topologycache.New(16, time.Minute)
	svc := NewTopologyService(collector, client, topology.NewBuilder(registry), cache, "test", nil)
	return &fixture{svc: svc, dyn: dyn, collector: collector, cache: cache}
}

func TestGetTopologyCaches(t *testing.T) {
	f := newFixture(t,
		obj("eventing.knative.dev/v1", "Broker", "default"),
		obj("sources.knative.dev/v1", "PingSource", "ping"),
	)
	ctx := context.Background()

	m, err := f.svc.GetTopology(ctx, ns, models.DomainEventing)
	require.NoError(t, err)
	assert.Len(t, m.Nodes, 2)

	_, err = f.svc.GetTopology(ctx, ns, models.DomainAll)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.collector.calls.Load())

	f.svc.Invalidate(ns)
	_, err = f.svc.GetTopology(ctx, ns, models.DomainServing)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.collector.calls.Load())
}

func TestGetTopologyRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetTopology(context.Background(), "Bad_NS", models.DomainAll)
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = f.svc.GetTopology(context.Background(), ns, models.Domain("nope"))
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestParseDomain(t *testing.T) {
	d, err := ParseDomain("")
	require.NoError(t, err)
	assert.Equal(t, models.DomainAll, d)

	d, err = ParseDomain("kamelets")
	require.NoError(t, err)
	assert.Equal(t, models.DomainKamelets, d)

	_, err = ParseDomain("routes")
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func getObj(t *testing.T, f *fixture, gvr schema.GroupVersionResource, name string) *unstructured.Unstructured {
	t.Helper()
	u, err := f.dyn.Resource(gvr).Namespace(ns).Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(t, err)
	return u
}

var pingGVR = schema.GroupVersionResource{Group: "sources.knative.dev", Version: "v1", Resource: "pingsources"}

func TestSetSinkToService(t *testing.T) {
	f := newFixture(t,
		obj("sources.knative.dev/v1", "PingSource", "ping"),
		obj("serving.knative.dev/v1", "Service", "svc1"),
	)
	ctx := context.Background()
	_, err := f.svc.GetTopology(ctx, ns, models.DomainAll)
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	updated, err := f.svc.SetSink(ctx, ns, LinkRequest{
		Source: ResourceRef{APIVersion: "sources.knative.dev/v1", Kind: "PingSource", Name: "ping"},
		Target: &ResourceRef{APIVersion: "serving.knative.dev/v1", Kind: "Service", Name: "svc1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ping", updated.GetName())
	assert.Zero(t, f.cache.Len(), "namespace cache is invalidated")

	stored := getObj(t, f, pingGVR, "ping")
	kind, _, _ := unstructured.NestedString(stored.Object, "spec", "sink", "ref", "kind")
	name, _, _ := unstructured.NestedString(stored.Object, "spec", "sink", "ref", "name")
	assert.Equal(t, "Service", kind)
	assert.Equal(t, "svc1", name)

	m, err := f.svc.GetTopology(ctx, ns, models.DomainAll)
	require.NoError(t, err)
	assert.Len(t, m.Edges, 1)
}

func TestSetSinkToURI(t *testing.T) {
	f := newFixture(t, obj("sources.knative.dev/v1", "PingSource", "ping"))

	_, err := f.svc.SetSink(context.Background(), ns, LinkRequest{
		Source: ResourceRef{APIVersion: "sources.knative.dev/v1", Kind: "PingSource", Name: "ping"},
		URI:    "http://example.com/events",
	})
	require.NoError(t, err)

	uri, _, _ := unstructured.NestedString(getObj(t, f, pingGVR, "ping").Object, "spec", "sink", "uri")
	assert.Equal(t, "http://example.com/events", uri)
}

func TestSetSinkErrors(t *testing.T) {
	f := newFixture(t, obj("sources.knative.dev/v1", "PingSource", "ping"))
	ctx := context.Background()
	ping := ResourceRef{APIVersion: "sources.knative.dev/v1", Kind: "PingSource", Name: "ping"}

	_, err := f.svc.SetSink(ctx, ns, LinkRequest{Source: ping, Target: &ping})
	assert.ErrorIs(t, err, sink.ErrSameResource)

	_, err = f.svc.SetSink(ctx, ns, LinkRequest{Source: ping})
	assert.ErrorIs(t, err, sink.ErrMissingTarget)

	_, err = f.svc.SetSink(ctx, ns, LinkRequest{URI: "http://x"})
	assert.ErrorIs(t, err, sink.ErrMissingSource)

	_, err = f.svc.SetSink(ctx, ns, LinkRequest{Source: ping,
		Target: &ResourceRef{APIVersion: "serving.knative.dev/v1", Kind: "Service", Name: "missing"}})
	assert.True(t, apierrors.IsNotFound(err))

	_, err = f.svc.SetSink(ctx, ns, LinkRequest{Source: ping,
		Target: &ResourceRef{APIVersion: "example.dev/v1", Kind: "Widget", Name: "w"}})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = f.svc.SetSink(ctx, ns, LinkRequest{Source: ResourceRef{APIVersion: "a/b/c", Kind: "PingSource", Name: "ping"}, URI: "http://x"})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestSetSubscriber(t *testing.T) {
	f := newFixture(t,
		obj("eventing.knative.dev/v1", "Trigger", "t1"),
		obj("serving.knative.dev/v1", "Service", "svc1"),
	)

	_, err := f.svc.SetSubscriber(context.Background(), ns, LinkRequest{
		Source: ResourceRef{APIVersion: "eventing.knative.dev/v1", Kind: "Trigger", Name: "t1"},
		Target: &ResourceRef{APIVersion: "serving.knative.dev/v1", Kind: "Service", Name: "svc1"},
	})
	require.NoError(t, err)

	gvr := topology.FixedRoleModels[topology.RoleTriggers].GVR()
	name, _, _ := unstructured.NestedString(getObj(t, f, gvr, "t1").Object, "spec", "subscriber", "ref", "name")
	assert.Equal(t, "svc1", name)
}

func TestSetKafkaConnection(t *testing.T) {
	conn := obj("rhoas.redhat.com/v1alpha1", "KafkaConnection", "kc")
	require.NoError(t, unstructured.SetNestedField(conn.Object, "broker.example.com:443", "status", "bootstrapServerHost"))
	require.NoError(t, unstructured.SetNestedField(conn.Object, "sa-secret", "spec", "credentials", "serviceAccountSecretName"))
	f := newFixture(t, obj("sources.knative.dev/v1beta1", "KafkaSource", "ks"), conn)

	_, err := f.svc.SetKafkaConnection(context.Background(), ns, LinkRequest{
		Source: ResourceRef{APIVersion: "sources.knative.dev/v1beta1", Kind: "KafkaSource", Name: "ks"},
		Target: &ResourceRef{APIVersion: "rhoas.redhat.com/v1alpha1", Kind: "KafkaConnection", Name: "kc"},
	})
	require.NoError(t, err)

	gvr := schema.GroupVersionResource{Group: "sources.knative.dev", Version: "v1beta1", Resource: "kafkasources"}
	stored := getObj(t, f, gvr, "ks")
	servers, _, _ := unstructured.NestedStringSlice(stored.Object, "spec", "bootstrapServers")
	assert.Equal(t, []string{"broker.example.com:443"}, servers)
	assert.True(t, topology.KafkaSourceUsesConnection(stored, conn))

	_, err = f.svc.SetKafkaConnection(context.Background(), ns, LinkRequest{
		Source: ResourceRef{APIVersion: "sources.knative.dev/v1beta1", Kind: "KafkaSource", Name: "ks"},
		URI:    "http://x",
	})
	assert.ErrorIs(t, err, sink.ErrMissingTarget, "a URI cannot stand in for a connection")
}
