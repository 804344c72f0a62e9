package k8s

import (
	apiextensionsfake "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset/fake"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

const testNamespace = "demo"

// listKinds registers a list kind for every role so the fake client can
// serve lists of them.
func listKinds(registry *topology.Registry) map[schema.GroupVersionResource]string {
	out := map[schema.GroupVersionResource]string{}
	for _, m := range registry.Models() {
		out[m.GVR()] = m.GVK.Kind + "List"
	}
	return out
}

func newFakeDynamic(registry *topology.Registry, objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds(registry), objs...)
}

func newTestClient(dyn *dynamicfake.FakeDynamicClient, crds ...runtime.Object) *Client {
	return NewClientFromInterfaces(dyn, apiextensionsfake.NewSimpleClientset(crds...), "test")
}

func newObj(apiVersion, kind, namespace, name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion(apiVersion)
	u.SetKind(kind)
	u.SetNamespace(namespace)
	u.SetName(name)
	u.SetUID(types.UID(namespace + "/" + kind + "/" + name))
	return u
}
