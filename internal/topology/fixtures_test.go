package topology

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

const testNamespace = "demo"

func newObj(apiVersion, kind, name, uid string) *unstructured.Unstructured {
	o := &unstructured.Unstructured{Object: map[string]interface{}{}}
	o.SetAPIVersion(apiVersion)
	o.SetKind(kind)
	o.SetName(name)
	o.SetNamespace(testNamespace)
	o.SetUID(types.UID(uid))
	return o
}

func inNamespace(o *unstructured.Unstructured, namespace string) *unstructured.Unstructured {
	o.SetNamespace(namespace)
	return o
}

func ownedBy(o, owner *unstructured.Unstructured) *unstructured.Unstructured {
	controller := true
	refs := append(o.GetOwnerReferences(), metav1.OwnerReference{
		APIVersion: owner.GetAPIVersion(),
		Kind:       owner.GetKind(),
		Name:       owner.GetName(),
		UID:        owner.GetUID(),
		Controller: &controller,
	})
	o.SetOwnerReferences(refs)
	return o
}

func withField(o *unstructured.Unstructured, value interface{}, fields ...string) *unstructured.Unstructured {
	if err := unstructured.SetNestedField(o.Object, value, fields...); err != nil {
		panic(err)
	}
	return o
}

func withLabels(o *unstructured.Unstructured, labels map[string]string) *unstructured.Unstructured {
	o.SetLabels(labels)
	return o
}

func ref(apiVersion, kind, name string) map[string]interface{} {
	return map[string]interface{}{"apiVersion": apiVersion, "kind": kind, "name": name}
}

func ksvc(name, uid string) *unstructured.Unstructured {
	return newObj("serving.knative.dev/v1", KindService, name, uid)
}

func configuration(name, uid string, owner *unstructured.Unstructured) *unstructured.Unstructured {
	return ownedBy(newObj("serving.knative.dev/v1", KindConfiguration, name, uid), owner)
}

func revision(name, uid string, owner *unstructured.Unstructured) *unstructured.Unstructured {
	return ownedBy(newObj("serving.knative.dev/v1", KindRevision, name, uid), owner)
}

func traffic(entries ...map[string]interface{}) []interface{} {
	out := make([]interface{}, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out
}

func trafficEntry(revision string, percent int64) map[string]interface{} {
	return map[string]interface{}{"revisionName": revision, "percent": percent}
}

func broker(name, uid string) *unstructured.Unstructured {
	return newObj("eventing.knative.dev/v1", KindBroker, name, uid)
}

func trigger(name, uid, brokerName string, subscriber map[string]interface{}) *unstructured.Unstructured {
	t := newObj("eventing.knative.dev/v1", KindTrigger, name, uid)
	withField(t, brokerName, "spec", "broker")
	return withField(t, subscriber, "spec", "subscriber", "ref")
}

func channel(kind, name, uid string) *unstructured.Unstructured {
	return newObj("messaging.knative.dev/v1", kind, name, uid)
}

func subscription(name, uid string, channelRef, subscriber map[string]interface{}) *unstructured.Unstructured {
	s := newObj("messaging.knative.dev/v1", KindSubscription, name, uid)
	withField(s, channelRef, "spec", "channel")
	return withField(s, subscriber, "spec", "subscriber", "ref")
}

func pingSource(name, uid string) *unstructured.Unstructured {
	return newObj("sources.knative.dev/v1", "PingSource", name, uid)
}

func resourcesOf(objs ...*unstructured.Unstructured) models.Resources {
	list := make([]unstructured.Unstructured, len(objs))
	for i, o := range objs {
		list[i] = *o
	}
	return ResourcesFromObjects(NewRegistry(), list, "")
}

func nodeByID(m models.Model, id string) *models.TopologyNode {
	for i := range m.Nodes {
		if m.Nodes[i].ID == id {
			return &m.Nodes[i]
		}
	}
	return nil
}

func edgeByID(m models.Model, id string) *models.TopologyEdge {
	for i := range m.Edges {
		if m.Edges[i].ID == id {
			return &m.Edges[i]
		}
	}
	return nil
}

func nodesOfType(m models.Model, t models.NodeType) []models.TopologyNode {
	var out []models.TopologyNode
	for _, n := range m.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
