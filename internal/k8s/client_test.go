package k8s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8stesting "k8s.io/client-go/testing"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

func TestClientGetUpdate(t *testing.T) {
	registry := topology.NewRegistry()
	source := newObj("sources.knative.dev/v1", "PingSource", testNamespace, "ping")
	client := newTestClient(newFakeDynamic(registry, source))
	client.SetLimiter(rate.NewLimiter(rate.Inf, 1))
	gvr := schema.GroupVersionResource{Group: "sources.knative.dev", Version: "v1", Resource: "pingsources"}
	ctx := context.Background()

	got, err := client.Get(ctx, gvr, testNamespace, "ping")
	require.NoError(t, err)
	require.NoError(t, unstructured.SetNestedField(got.Object, "http://example.com", "spec", "sink", "uri"))

	_, err = client.Update(ctx, gvr, got)
	require.NoError(t, err)

	again, err := client.Get(ctx, gvr, testNamespace, "ping")
	require.NoError(t, err)
	uri, _, _ := unstructured.NestedString(again.Object, "spec", "sink", "uri")
	assert.Equal(t, "http://example.com", uri)

	_, lastErr, state := client.Health()
	assert.NoError(t, lastErr)
	assert.Equal(t, StateClosed, state)
}

func TestClientGetNotFound(t *testing.T) {
	registry := topology.NewRegistry()
	client := newTestClient(newFakeDynamic(registry))
	gvr := topology.FixedRoleModels[topology.RoleServices].GVR()

	_, err := client.Get(context.Background(), gvr, testNamespace, "missing")
	assert.True(t, apierrors.IsNotFound(err))
	_, lastErr, _ := client.Health()
	assert.Error(t, lastErr)
}

func TestClientRetriesServerErrors(t *testing.T) {
	registry := topology.NewRegistry()
	dyn := newFakeDynamic(registry, newObj("eventing.knative.dev/v1", "Broker", testNamespace, "default"))
	calls := 0
	dyn.PrependReactor("get", "brokers", func(k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		if calls == 1 {
			return true, nil, apierrors.NewTooManyRequests("slow down", 0)
		}
		return false, nil, nil
	})
	client := newTestClient(dyn)

	got, err := client.Get(context.Background(), topology.FixedRoleModels[topology.RoleBrokers].GVR(), testNamespace, "default")
	require.NoError(t, err)
	assert.Equal(t, "default", got.GetName())
	assert.Equal(t, 2, calls)
}
