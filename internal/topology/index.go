package topology

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// OwnedBy reports whether candidate carries a controller owner reference
// with the given uid.
func OwnedBy(candidate *unstructured.Unstructured, ownerUID string) bool {
	if candidate == nil || ownerUID == "" {
		return false
	}
	for _, ref := range candidate.GetOwnerReferences() {
		if string(ref.UID) == ownerUID && ref.Controller != nil && *ref.Controller {
			return true
		}
	}
	return false
}

// GetOwnedResources returns the candidates controlled by owner, in input order.
func GetOwnedResources(owner *unstructured.Unstructured, candidates []*unstructured.Unstructured) []*unstructured.Unstructured {
	if owner == nil {
		return nil
	}
	uid := string(owner.GetUID())
	var owned []*unstructured.Unstructured
	for _, c := range candidates {
		if OwnedBy(c, uid) {
			owned = append(owned, c)
		}
	}
	return owned
}

// GetParentResource returns the first candidate whose uid appears among the
// owner references of resource, or nil.
func GetParentResource(resource *unstructured.Unstructured, candidates []*unstructured.Unstructured) *unstructured.Unstructured {
	if resource == nil {
		return nil
	}
	refs := resource.GetOwnerReferences()
	if len(refs) == 0 {
		return nil
	}
	for _, c := range candidates {
		uid := c.GetUID()
		if uid == "" {
			continue
		}
		for _, ref := range refs {
			if ref.UID == uid {
				return c
			}
		}
	}
	return nil
}
