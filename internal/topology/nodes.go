package topology

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// BuildNodesFor turns an aggregated item into graph nodes. A KnService
// yields one Revision node per revision that receives traffic, followed by
// the service node listing them as children. Every other type yields a
// single node.
func (b *Builder) BuildNodesFor(resource *unstructured.Unstructured, nodeType models.NodeType, item models.Item, res models.Resources) []models.TopologyNode {
	if resource == nil {
		return nil
	}
	if nodeType != models.NodeTypeKnService {
		return []models.TopologyNode{newNode(resource, nodeType, &item, nil)}
	}

	var nodes []models.TopologyNode
	var children []string
	for _, rev := range b.trafficRevisions(resource, res) {
		nodes = append(nodes, newNode(rev, models.NodeTypeRevision, nil, nil))
		children = append(children, string(rev.GetUID()))
	}
	return append(nodes, newNode(resource, models.NodeTypeKnService, &item, children))
}

// trafficRevisions returns the revisions of service's first configuration
// that are named in status.traffic. Revisions without traffic are hidden.
func (b *Builder) trafficRevisions(service *unstructured.Unstructured, res models.Resources) []*unstructured.Unstructured {
	configurations := GetOwnedResources(service, res.List(RoleConfigurations))
	if len(configurations) == 0 {
		return nil
	}
	revisions := GetOwnedResources(configurations[0], res.List(RoleRevisions))
	named := sets.New[string]()
	for _, t := range trafficTargets(service) {
		named.Insert(t.RevisionName)
	}
	var out []*unstructured.Unstructured
	for _, rev := range revisions {
		if named.Has(rev.GetName()) {
			out = append(out, rev)
		} else {
			b.logger.Debug("revision without traffic hidden", "service", service.GetName(), "revision", rev.GetName())
		}
	}
	return out
}

func newNode(resource *unstructured.Unstructured, nodeType models.NodeType, item *models.Item, children []string) models.TopologyNode {
	return models.TopologyNode{
		ID:           string(resource.GetUID()),
		Type:         nodeType,
		ResourceKind: ReferenceForObject(resource),
		Resource:     resource,
		Resources:    item,
		Data:         nodeData(resource),
		Children:     children,
	}
}

func nodeData(resource *unstructured.Unstructured) models.NodeData {
	url := nestedString(resource, "status", "url")
	if url == "" {
		url = nestedString(resource, "status", "address", "url")
	}
	return models.NodeData{
		Kind:              resource.GetKind(),
		Name:              resource.GetName(),
		Namespace:         resource.GetNamespace(),
		URL:               url,
		IsKnativeResource: isKnativeResource(resource),
	}
}

func isKnativeResource(resource *unstructured.Unstructured) bool {
	return strings.HasSuffix(resource.GroupVersionKind().Group, "knative.dev")
}

// SinkURINodeID is the node id of a bare sink URI, escaped like
// encodeURIComponent.
func SinkURINodeID(uri string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(uri); i++ {
		c := uri[i]
		if isURIComponentSafe(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

func isURIComponentSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// NewSinkURIResource builds the synthetic resource behind a sink URI node.
func NewSinkURIResource(uri, namespace string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"kind": KindURI,
		"metadata": map[string]interface{}{
			"uid":       SinkURINodeID(uri),
			"namespace": namespace,
		},
		"spec": map[string]interface{}{
			"sinkUri": uri,
		},
	}}
}

func newSinkURINode(uri, namespace string) models.TopologyNode {
	resource := NewSinkURIResource(uri, namespace)
	return models.TopologyNode{
		ID:           SinkURINodeID(uri),
		Type:         models.NodeTypeSinkURI,
		ResourceKind: KindURI,
		Resource:     resource,
		Resources:    &models.Item{Obj: resource},
		Data: models.NodeData{
			Kind:      KindURI,
			Name:      uri,
			Namespace: namespace,
			SinkURI:   uri,
		},
	}
}

// TrafficTarget is one entry of a service's status.traffic.
type TrafficTarget struct {
	RevisionName   string
	Percent        int
	Tag            string
	LatestRevision bool
}

func trafficTargets(service *unstructured.Unstructured) []TrafficTarget {
	v, found, err := unstructured.NestedFieldNoCopy(service.Object, "status", "traffic")
	if err != nil || !found {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]TrafficTarget, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name := stringField(m, "revisionName")
		if name == "" {
			continue
		}
		latest, _ := m["latestRevision"].(bool)
		out = append(out, TrafficTarget{
			RevisionName:   name,
			Percent:        intField(m, "percent"),
			Tag:            stringField(m, "tag"),
			LatestRevision: latest,
		})
	}
	return out
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
