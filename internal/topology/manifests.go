package topology

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// ResourcesFromObjects buckets objs into a loaded snapshot keyed by role.
// Every role the registry knows is present, empty when no object matched.
// Objects outside namespace (when set) and objects of no interest are skipped;
// objects without a namespace are placed in it.
func ResourcesFromObjects(registry *Registry, objs []unstructured.Unstructured, namespace string) models.Resources {
	res := models.Resources{}
	for _, role := range registry.Roles() {
		res[role] = &models.ResourceCollection{Loaded: true, Data: []unstructured.Unstructured{}}
	}
	for i := range objs {
		obj := &objs[i]
		if namespace != "" && obj.GetNamespace() != "" && obj.GetNamespace() != namespace {
			continue
		}
		role := registry.RoleFor(obj)
		if role == "" {
			continue
		}
		if namespace != "" && obj.GetNamespace() == "" {
			obj = obj.DeepCopy()
			obj.SetNamespace(namespace)
		}
		res.Add(role, *obj)
	}
	return res
}
