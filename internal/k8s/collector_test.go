package k8s

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8stesting "k8s.io/client-go/testing"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

func TestCollectorSnapshot(t *testing.T) {
	registry := topology.NewRegistry()
	dyn := newFakeDynamic(registry,
		newObj("serving.knative.dev/v1", "Service", testNamespace, "svc1"),
		newObj("serving.knative.dev/v1", "Service", "other", "svc2"),
		newObj("sources.knative.dev/v1", "PingSource", testNamespace, "ping"),
	)
	dyn.PrependReactor("list", "brokers", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Group: "eventing.knative.dev", Resource: "brokers"}, "", errors.New("denied"))
	})
	dyn.PrependReactor("list", "kafkasinks", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewNotFound(schema.GroupResource{Group: "eventing.knative.dev", Resource: "kafkasinks"}, "")
	})

	c := NewCollector(newTestClient(dyn), registry, nil)
	res, err := c.Collect(context.Background(), testNamespace)
	require.NoError(t, err)

	for _, role := range registry.Roles() {
		assert.Contains(t, res, role)
	}

	services := res.List(topology.RoleServices)
	require.Len(t, services, 1)
	assert.Equal(t, "svc1", services[0].GetName())

	pingRole := topology.ReferenceFor(schema.GroupVersionKind{Group: "sources.knative.dev", Version: "v1", Kind: "PingSource"})
	assert.Len(t, res.List(pingRole), 1)

	brokers := res[topology.RoleBrokers]
	assert.False(t, brokers.Loaded)
	assert.Contains(t, brokers.LoadError, "denied")

	sinks := res[topology.RoleKafkaSinks]
	assert.True(t, sinks.Loaded, "unserved kinds load empty")
	assert.Empty(t, sinks.Data)
}

func TestCollectorBuildsFromSnapshot(t *testing.T) {
	registry := topology.NewRegistry()
	dyn := newFakeDynamic(registry, newObj("eventing.knative.dev/v1", "Broker", testNamespace, "default"))

	res, err := NewCollector(newTestClient(dyn), registry, nil).Collect(context.Background(), testNamespace)
	require.NoError(t, err)

	top := topology.NewBuilder(registry).Build(res)
	assert.Len(t, top.Merged().Nodes, 1)
}

func TestCollectorCancelled(t *testing.T) {
	registry := topology.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCollector(newTestClient(newFakeDynamic(registry)), registry, nil).Collect(ctx, testNamespace)
	assert.ErrorIs(t, err, context.Canceled)
}
