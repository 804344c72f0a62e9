// Package validate checks path and body parameters of the REST API.
package validate

import (
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Namespace reports whether ns is a valid namespace name.
func Namespace(ns string) bool {
	return ns != "" && len(validation.IsDNS1123Label(ns)) == 0
}

// Name reports whether name is a valid object name (DNS subdomain).
func Name(name string) bool {
	return name != "" && len(validation.IsDNS1123Subdomain(name)) == 0
}

// Kind reports whether kind is a plausible resource kind: 1-63 letters or digits.
func Kind(kind string) bool {
	if kind == "" || len(kind) > 63 {
		return false
	}
	for _, r := range kind {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

// APIVersion reports whether v parses as group/version or a core version.
func APIVersion(v string) bool {
	if v == "" || strings.Count(v, "/") > 1 {
		return false
	}
	gv, err := schema.ParseGroupVersion(v)
	if err != nil || gv.Version == "" {
		return false
	}
	if gv.Group != "" && len(validation.IsDNS1123Subdomain(gv.Group)) != 0 {
		return false
	}
	return len(validation.IsDNS1123Label(gv.Version)) == 0
}
