package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestReferenceFor(t *testing.T) {
	assert.Equal(t, "core~v1~Pod", ReferenceFor(schema.GroupVersionKind{Version: "v1", Kind: "Pod"}))
	assert.Equal(t, "sources.knative.dev~v1~PingSource",
		ReferenceFor(schema.GroupVersionKind{Group: "sources.knative.dev", Version: "v1", Kind: "PingSource"}))
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.IsEventSourceKind("PingSource"))
	assert.True(t, r.IsKafkaSourceKind(KindKafkaSource))
	assert.False(t, r.IsKafkaSourceKind("PingSource"))
	assert.True(t, r.IsChannelKind("InMemoryChannel"))
	assert.False(t, r.IsChannelKind(KindBroker))

	sources := r.EventSources()
	require.Len(t, sources, len(DefaultEventSources))
	for i := 1; i < len(sources); i++ {
		assert.Less(t, sources[i-1].GVK.Kind, sources[i].GVK.Kind)
	}

	roles := r.Roles()
	assert.Contains(t, roles, RoleServices)
	assert.Contains(t, roles, "messaging.knative.dev~v1~InMemoryChannel")
	assert.Len(t, r.Models(), len(roles))
}

func TestRegistryAddKinds(t *testing.T) {
	r := NewRegistry()
	gitlab := KindModel{GVK: schema.GroupVersionKind{Group: "sources.knative.dev", Version: "v1alpha1", Kind: "GitLabSource"}, Resource: "gitlabsources"}
	r.AddEventSource(gitlab)
	r.AddChannel(KindModel{GVK: schema.GroupVersionKind{Group: "messaging.knative.dev", Version: "v1alpha1", Kind: "NatssChannel"}, Resource: "natsschannels"})

	assert.True(t, r.IsEventSourceKind("GitLabSource"))
	assert.True(t, r.IsChannelKind("NatssChannel"))
	assert.Equal(t, "sources.knative.dev/v1alpha1, Resource=gitlabsources", gitlab.GVR().String())

	obj := newObj("sources.knative.dev/v1alpha1", "GitLabSource", "gl", "G1")
	assert.Equal(t, "sources.knative.dev~v1alpha1~GitLabSource", r.RoleFor(obj))
}

func TestRoleFor(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		apiVersion, kind, want string
	}{
		{"serving.knative.dev/v1", KindService, RoleServices},
		{"v1", KindService, ""},
		{"serving.knative.dev/v1", KindRevision, RoleRevisions},
		{"apps/v1", KindDeployment, RoleDeployments},
		{"v1", KindPod, RolePods},
		{"eventing.knative.dev/v1", KindTrigger, RoleTriggers},
		{"messaging.knative.dev/v1", KindSubscription, RoleSubscriptions},
		{"rhoas.redhat.com/v1alpha1", KindKafkaConn, RoleKafkaConnections},
		{"sources.knative.dev/v1beta1", KindKafkaSource, "sources.knative.dev~v1beta1~KafkaSource"},
		{"messaging.knative.dev/v1", "Channel", "messaging.knative.dev~v1~Channel"},
		{"v1", "ConfigMap", ""},
	}
	for _, tc := range cases {
		t.Run(tc.apiVersion+"/"+tc.kind, func(t *testing.T) {
			assert.Equal(t, tc.want, r.RoleFor(newObj(tc.apiVersion, tc.kind, "x", "U1")))
		})
	}
}

func TestResourcesFromObjects(t *testing.T) {
	r := NewRegistry()
	inNs := *ksvc("svc1", "S1")
	other := *ksvc("svc2", "S2")
	other.SetNamespace("elsewhere")
	cm := *newObj("v1", "ConfigMap", "cfg", "CM1")
	bare := *broker("default", "B1")
	bare.SetNamespace("")

	res := ResourcesFromObjects(r, []unstructured.Unstructured{inNs, other, cm, bare}, testNamespace)

	require.Len(t, res.List(RoleServices), 1)
	assert.Equal(t, "svc1", res.List(RoleServices)[0].GetName())
	require.Len(t, res.List(RoleBrokers), 1)
	assert.Equal(t, testNamespace, res.List(RoleBrokers)[0].GetNamespace())
	assert.Empty(t, bare.GetNamespace(), "input is not modified")
	assert.True(t, res[RoleTriggers].Loaded)
	assert.Empty(t, res.List(RoleTriggers))
	assert.Len(t, res, len(r.Roles()))
}

func TestRegistryModelFor(t *testing.T) {
	r := NewRegistry()

	m, ok := r.ModelFor("serving.knative.dev", KindService)
	require.True(t, ok)
	assert.Equal(t, "services", m.Resource)

	m, ok = r.ModelFor("sources.knative.dev", "PingSource")
	require.True(t, ok)
	assert.Equal(t, "pingsources", m.Resource)

	_, ok = r.ModelFor("", "Service")
	assert.False(t, ok)
	_, ok = r.ModelFor("example.dev", "PingSource")
	assert.False(t, ok)
}
