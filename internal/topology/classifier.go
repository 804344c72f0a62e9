package topology

import (
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// ObjectRef is a typed reference embedded in a resource spec.
type ObjectRef struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
}

// nestedRef reads a {apiVersion, kind, name, namespace} map at fields. The
// namespace defaults to obj's own. A reference without a name or kind is
// treated as absent.
func nestedRef(obj *unstructured.Unstructured, fields ...string) (ObjectRef, bool) {
	if obj == nil {
		return ObjectRef{}, false
	}
	m, ok := nestedMapNoCopy(obj, fields...)
	if !ok {
		return ObjectRef{}, false
	}
	ref := ObjectRef{
		APIVersion: stringField(m, "apiVersion"),
		Kind:       stringField(m, "kind"),
		Name:       stringField(m, "name"),
		Namespace:  stringField(m, "namespace"),
	}
	if ref.Namespace == "" {
		ref.Namespace = obj.GetNamespace()
	}
	if ref.Name == "" || ref.Kind == "" {
		return ObjectRef{}, false
	}
	return ref, true
}

func nestedMapNoCopy(obj *unstructured.Unstructured, fields ...string) (map[string]interface{}, bool) {
	v, found, err := unstructured.NestedFieldNoCopy(obj.Object, fields...)
	if err != nil || !found {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// nestedString returns the string at fields, or "".
func nestedString(obj *unstructured.Unstructured, fields ...string) string {
	if obj == nil {
		return ""
	}
	s, _, _ := unstructured.NestedString(obj.Object, fields...)
	return s
}

// refersTo matches ref against obj on namespace, name and kind, and on
// apiVersion when the reference carries one.
func refersTo(ref ObjectRef, obj *unstructured.Unstructured) bool {
	if !refersToNameKind(ref, obj) {
		return false
	}
	return ref.APIVersion == "" || ref.APIVersion == obj.GetAPIVersion()
}

// refersToNameKind matches ref against obj on namespace, name and kind.
func refersToNameKind(ref ObjectRef, obj *unstructured.Unstructured) bool {
	return obj != nil &&
		ref.Namespace == obj.GetNamespace() &&
		ref.Name == obj.GetName() &&
		ref.Kind == obj.GetKind()
}

// triggersOn reports whether trigger delivers from broker. spec.broker is a
// bare name resolved in the trigger's namespace.
func triggersOn(trigger, broker *unstructured.Unstructured) bool {
	return trigger != nil && broker != nil &&
		trigger.GetNamespace() == broker.GetNamespace() &&
		nestedString(trigger, "spec", "broker") == broker.GetName()
}

// IsSubscriber reports whether candidate is the subscriber of link, a
// Trigger or Subscription hanging off main (a broker or channel). A channel
// reference on the link must name main exactly, which keeps same-named
// channels of different kinds apart; a Trigger must name main as its broker.
func IsSubscriber(candidate, link, main *unstructured.Unstructured) bool {
	ref, ok := nestedRef(link, "spec", "subscriber", "ref")
	if !ok || !refersTo(ref, candidate) {
		return false
	}
	if channel, ok := nestedRef(link, "spec", "channel"); ok {
		return refersTo(channel, main)
	}
	if link.GetKind() == KindTrigger {
		return triggersOn(link, main)
	}
	return true
}

// IsPublisher reports whether candidate (a broker or channel) publishes to
// main through link.
func IsPublisher(candidate, link, main *unstructured.Unstructured) bool {
	ref, ok := nestedRef(link, "spec", "subscriber", "ref")
	if !ok || !refersTo(ref, main) || candidate == nil {
		return false
	}
	if link.GetKind() == KindTrigger {
		return triggersOn(link, candidate)
	}
	channel, ok := nestedRef(link, "spec", "channel")
	return ok && refersToNameKind(channel, candidate)
}

// IsInternalResource reports whether resource is plumbing created by another
// resource: anything but a Broker that carries owner references.
func IsInternalResource(resource *unstructured.Unstructured) bool {
	if resource == nil || resource.GetKind() == KindBroker {
		return false
	}
	_, found, _ := unstructured.NestedFieldNoCopy(resource.Object, "metadata", "ownerReferences")
	return found
}

// SinkRef returns the typed sink of an event source or binding, looking at
// spec.sink.ref first and falling back to a bare spec.sink reference.
func SinkRef(obj *unstructured.Unstructured) (ObjectRef, bool) {
	if ref, ok := nestedRef(obj, "spec", "sink", "ref"); ok {
		return ref, true
	}
	return nestedRef(obj, "spec", "sink")
}

// SinkURI returns spec.sink.uri, or "".
func SinkURI(obj *unstructured.Unstructured) string {
	return nestedString(obj, "spec", "sink", "uri")
}

// TriggerFilters flattens spec.filter.attributes into key-sorted pairs.
func TriggerFilters(trigger *unstructured.Unstructured) []models.FilterPair {
	if trigger == nil || trigger.GetKind() != KindTrigger {
		return []models.FilterPair{}
	}
	attrs, ok := nestedMapNoCopy(trigger, "spec", "filter", "attributes")
	if !ok {
		return []models.FilterPair{}
	}
	pairs := make([]models.FilterPair, 0, len(attrs))
	for k, v := range attrs {
		pairs = append(pairs, models.FilterPair{Key: k, Value: fmt.Sprint(v)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs
}
