package topology

import (
	"sort"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Fixed resource roles of the input snapshot.
const (
	RoleServices         = "ksservices"
	RoleRevisions        = "revisions"
	RoleConfigurations   = "configurations"
	RoleRoutes           = "ksroutes"
	RoleDeployments      = "deployments"
	RolePods             = "pods"
	RoleBrokers          = "brokers"
	RoleTriggers         = "triggers"
	RoleSubscriptions    = "eventingsubscription"
	RoleIntegrations     = "integrations"
	RoleKamelets         = "kamelets"
	RoleKameletBindings  = "kameletbindings"
	RoleKafkaConnections = "kafkaConnections"
	RoleKafkaSinks       = "kafkasinks"
)

// Well-known kinds.
const (
	KindService        = "Service"
	KindRevision       = "Revision"
	KindConfiguration  = "Configuration"
	KindRoute          = "Route"
	KindBroker         = "Broker"
	KindTrigger        = "Trigger"
	KindSubscription   = "Subscription"
	KindDeployment     = "Deployment"
	KindPod            = "Pod"
	KindIntegration    = "Integration"
	KindKamelet        = "Kamelet"
	KindKameletBinding = "KameletBinding"
	KindKafkaSource    = "KafkaSource"
	KindCamelSource    = "CamelSource"
	KindKafkaConn      = "KafkaConnection"
	KindKafkaSink      = "KafkaSink"
	KindURI            = "URI"
)

const (
	groupServing   = "serving.knative.dev"
	groupEventing  = "eventing.knative.dev"
	groupMessaging = "messaging.knative.dev"
	groupSources   = "sources.knative.dev"
	groupCamel     = "camel.apache.org"
	groupRHOAS     = "rhoas.redhat.com"
	groupApps      = "apps"
)

// Labels consulted while building.
const (
	LabelPartOf         = "app.kubernetes.io/part-of"
	LabelServingService = "serving.knative.dev/service"
	LabelBroker         = "eventing.knative.dev/broker"
)

// KindModel describes a dynamically registered kind.
type KindModel struct {
	GVK      schema.GroupVersionKind `json:"gvk"`
	Resource string                  `json:"resource"`
	// Kafka marks event sources rendered as EventSourceKafka.
	Kafka bool `json:"kafka,omitempty"`
}

// Role is the snapshot role name of the kind: group~version~Kind.
func (m KindModel) Role() string {
	return ReferenceFor(m.GVK)
}

// GVR returns the group/version/resource used to list the kind.
func (m KindModel) GVR() schema.GroupVersionResource {
	return m.GVK.GroupVersion().WithResource(m.Resource)
}

// ReferenceFor renders a GVK as group~version~Kind.
func ReferenceFor(gvk schema.GroupVersionKind) string {
	group := gvk.Group
	if group == "" {
		group = "core"
	}
	return group + "~" + gvk.Version + "~" + gvk.Kind
}

// ReferenceForObject renders the object's GVK as group~version~Kind.
func ReferenceForObject(obj *unstructured.Unstructured) string {
	return ReferenceFor(obj.GroupVersionKind())
}

// Registry holds the event-source and channel kinds known to the builder.
// It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	eventSources map[string]KindModel
	channels     map[string]KindModel
}

// DefaultEventSources are registered by NewRegistry.
var DefaultEventSources = []KindModel{
	{GVK: schema.GroupVersionKind{Group: groupSources, Version: "v1", Kind: "PingSource"}, Resource: "pingsources"},
	{GVK: schema.GroupVersionKind{Group: groupSources, Version: "v1", Kind: "ApiServerSource"}, Resource: "apiserversources"},
	{GVK: schema.GroupVersionKind{Group: groupSources, Version: "v1", Kind: "ContainerSource"}, Resource: "containersources"},
	{GVK: schema.GroupVersionKind{Group: groupSources, Version: "v1", Kind: "SinkBinding"}, Resource: "sinkbindings"},
	{GVK: schema.GroupVersionKind{Group: groupSources, Version: "v1beta1", Kind: KindKafkaSource}, Resource: "kafkasources", Kafka: true},
	{GVK: schema.GroupVersionKind{Group: groupSources, Version: "v1alpha1", Kind: KindCamelSource}, Resource: "camelsources"},
}

// DefaultChannels are registered by NewRegistry.
var DefaultChannels = []KindModel{
	{GVK: schema.GroupVersionKind{Group: groupMessaging, Version: "v1", Kind: "Channel"}, Resource: "channels"},
	{GVK: schema.GroupVersionKind{Group: groupMessaging, Version: "v1", Kind: "InMemoryChannel"}, Resource: "inmemorychannels"},
	{GVK: schema.GroupVersionKind{Group: groupMessaging, Version: "v1beta1", Kind: "KafkaChannel"}, Resource: "kafkachannels"},
}

// NewRegistry returns a registry seeded with the default kinds.
func NewRegistry() *Registry {
	r := &Registry{
		eventSources: map[string]KindModel{},
		channels:     map[string]KindModel{},
	}
	for _, m := range DefaultEventSources {
		r.AddEventSource(m)
	}
	for _, m := range DefaultChannels {
		r.AddChannel(m)
	}
	return r
}

// AddEventSource registers (or replaces) an event-source kind.
func (r *Registry) AddEventSource(m KindModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventSources[m.GVK.Kind] = m
}

// AddChannel registers (or replaces) a channel kind.
func (r *Registry) AddChannel(m KindModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[m.GVK.Kind] = m
}

// EventSources returns the registered event-source kinds sorted by kind.
func (r *Registry) EventSources() []KindModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedModels(r.eventSources)
}

// Channels returns the registered channel kinds sorted by kind.
func (r *Registry) Channels() []KindModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedModels(r.channels)
}

// IsEventSourceKind reports whether kind is a registered event source.
func (r *Registry) IsEventSourceKind(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.eventSources[kind]
	return ok
}

// IsChannelKind reports whether kind is a registered channel.
func (r *Registry) IsChannelKind(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[kind]
	return ok
}

// IsKafkaSourceKind reports whether kind is a registered kafka-backed source.
func (r *Registry) IsKafkaSourceKind(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.eventSources[kind]
	return ok && m.Kafka
}

func sortedModels(in map[string]KindModel) []KindModel {
	out := make([]KindModel, 0, len(in))
	for _, m := range in {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GVK.Kind < out[j].GVK.Kind })
	return out
}

// FixedRoleModels lists the GVR and kind of every fixed role.
var FixedRoleModels = map[string]KindModel{
	RoleServices:         {GVK: schema.GroupVersionKind{Group: groupServing, Version: "v1", Kind: KindService}, Resource: "services"},
	RoleRevisions:        {GVK: schema.GroupVersionKind{Group: groupServing, Version: "v1", Kind: KindRevision}, Resource: "revisions"},
	RoleConfigurations:   {GVK: schema.GroupVersionKind{Group: groupServing, Version: "v1", Kind: KindConfiguration}, Resource: "configurations"},
	RoleRoutes:           {GVK: schema.GroupVersionKind{Group: groupServing, Version: "v1", Kind: KindRoute}, Resource: "routes"},
	RoleDeployments:      {GVK: schema.GroupVersionKind{Group: groupApps, Version: "v1", Kind: KindDeployment}, Resource: "deployments"},
	RolePods:             {GVK: schema.GroupVersionKind{Version: "v1", Kind: KindPod}, Resource: "pods"},
	RoleBrokers:          {GVK: schema.GroupVersionKind{Group: groupEventing, Version: "v1", Kind: KindBroker}, Resource: "brokers"},
	RoleTriggers:         {GVK: schema.GroupVersionKind{Group: groupEventing, Version: "v1", Kind: KindTrigger}, Resource: "triggers"},
	RoleSubscriptions:    {GVK: schema.GroupVersionKind{Group: groupMessaging, Version: "v1", Kind: KindSubscription}, Resource: "subscriptions"},
	RoleIntegrations:     {GVK: schema.GroupVersionKind{Group: groupCamel, Version: "v1", Kind: KindIntegration}, Resource: "integrations"},
	RoleKamelets:         {GVK: schema.GroupVersionKind{Group: groupCamel, Version: "v1alpha1", Kind: KindKamelet}, Resource: "kamelets"},
	RoleKameletBindings:  {GVK: schema.GroupVersionKind{Group: groupCamel, Version: "v1alpha1", Kind: KindKameletBinding}, Resource: "kameletbindings"},
	RoleKafkaConnections: {GVK: schema.GroupVersionKind{Group: groupRHOAS, Version: "v1alpha1", Kind: KindKafkaConn}, Resource: "kafkaconnections"},
	RoleKafkaSinks:       {GVK: schema.GroupVersionKind{Group: groupEventing, Version: "v1alpha1", Kind: KindKafkaSink}, Resource: "kafkasinks"},
}

// RoleFor returns the snapshot role an object belongs to, or "" when the
// object is of no interest to the builder.
func (r *Registry) RoleFor(obj *unstructured.Unstructured) string {
	gvk := obj.GroupVersionKind()
	if m, ok := r.dynamicModel(gvk.Kind); ok && m.GVK.Group == gvk.Group {
		return m.Role()
	}
	for role, m := range FixedRoleModels {
		if m.GVK.Group == gvk.Group && m.GVK.Kind == gvk.Kind {
			return role
		}
	}
	return ""
}

func (r *Registry) dynamicModel(kind string) (KindModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.eventSources[kind]; ok {
		return m, true
	}
	m, ok := r.channels[kind]
	return m, ok
}

// Roles returns every role the builder reads, fixed roles first.
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(FixedRoleModels)+8)
	for role := range FixedRoleModels {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, m := range r.EventSources() {
		roles = append(roles, m.Role())
	}
	for _, m := range r.Channels() {
		roles = append(roles, m.Role())
	}
	return roles
}

// Models returns role -> KindModel for every role the builder reads.
func (r *Registry) Models() map[string]KindModel {
	out := make(map[string]KindModel, len(FixedRoleModels)+8)
	for role, m := range FixedRoleModels {
		out[role] = m
	}
	for _, m := range r.EventSources() {
		out[m.Role()] = m
	}
	for _, m := range r.Channels() {
		out[m.Role()] = m
	}
	return out
}

// ModelFor returns the kind model of group/kind among the fixed roles and
// registered kinds.
func (r *Registry) ModelFor(group, kind string) (KindModel, bool) {
	if m, ok := r.dynamicModel(kind); ok && m.GVK.Group == group {
		return m, true
	}
	for _, m := range FixedRoleModels {
		if m.GVK.Group == group && m.GVK.Kind == kind {
			return m, true
		}
	}
	return KindModel{}, false
}
