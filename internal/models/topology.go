package models

import (
	"slices"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/sets"
)

// NodeType identifies how a topology node is rendered.
type NodeType string

const (
	NodeTypeKnService        NodeType = "knative-service"
	NodeTypeRevision         NodeType = "knative-revision"
	NodeTypeEventSource      NodeType = "event-source"
	NodeTypeEventSourceKafka NodeType = "event-source-kafka"
	NodeTypePubSub           NodeType = "event-pubsub"
	NodeTypeSinkURI          NodeType = "sink-uri"
	NodeTypeKafka            NodeType = "kafka-connection"
	NodeTypeEventSink        NodeType = "event-sink"
)

// EdgeType identifies the relationship an edge represents.
type EdgeType string

const (
	EdgeTypeTraffic              EdgeType = "revision-traffic"
	EdgeTypeEventSource          EdgeType = "event-source-link"
	EdgeTypeEventPubSubLink      EdgeType = "event-pubsub-link"
	EdgeTypeEventSourceKafkaLink EdgeType = "event-source-kafka-link"
)

// Domain names one of the per-domain graphs.
type Domain string

const (
	DomainServing    Domain = "serving"
	DomainEventing   Domain = "eventing"
	DomainKamelets   Domain = "kamelets"
	DomainKafkaSinks Domain = "kafkasinks"
	DomainAll        Domain = "all"
)

// Domains lists the per-domain graphs in build order.
var Domains = []Domain{DomainServing, DomainEventing, DomainKamelets, DomainKafkaSinks}

// NodeData holds render-time fields derived from the node's resource.
type NodeData struct {
	Kind              string `json:"kind"`
	Name              string `json:"name"`
	Namespace         string `json:"namespace"`
	URL               string `json:"url,omitempty"`
	IsKnativeResource bool   `json:"isKnativeResource"`
	SinkURI           string `json:"sinkUri,omitempty"`

	// Revision detail, filled once all revisions of a service exist.
	Traffic *int     `json:"traffic,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Latest  bool     `json:"latest,omitempty"`
	Service string   `json:"service,omitempty"`
}

// TopologyNode is one node of a Knative topology graph.
type TopologyNode struct {
	ID           string                     `json:"id"`
	Type         NodeType                   `json:"type"`
	ResourceKind string                     `json:"resourceKind"`
	Resource     *unstructured.Unstructured `json:"resource"`
	Resources    *Item                      `json:"resources,omitempty"`
	Data         NodeData                   `json:"data"`
	Children     []string                   `json:"children,omitempty"`
}

// EdgeResources carries the link resource behind a pub/sub edge for detail display.
type EdgeResources struct {
	Obj          *unstructured.Unstructured   `json:"obj"`
	EventSources []*unstructured.Unstructured `json:"eventSources,omitempty"`
	Brokers      []*unstructured.Unstructured `json:"brokers,omitempty"`
	Channels     []*unstructured.Unstructured `json:"channels,omitempty"`
	KsServices   []*unstructured.Unstructured `json:"ksservices,omitempty"`
	Filters      []FilterPair                 `json:"filters,omitempty"`
}

// EdgeData is the optional payload of an edge.
type EdgeData struct {
	Percent   *int           `json:"percent,omitempty"`
	Resources *EdgeResources `json:"resources,omitempty"`
}

// TopologyEdge is a directed relationship between two nodes.
type TopologyEdge struct {
	ID     string    `json:"id"`
	Type   EdgeType  `json:"type"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Data   *EdgeData `json:"data,omitempty"`
}

// TopologyGroup collects nodes sharing an application-group label.
type TopologyGroup struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Nodes []string `json:"nodes"`
}

// Model is the graph handed to the rendering layer.
type Model struct {
	Nodes  []TopologyNode  `json:"nodes"`
	Edges  []TopologyEdge  `json:"edges"`
	Groups []TopologyGroup `json:"groups"`
}

// Topology holds one Model per domain.
type Topology struct {
	Serving    Model `json:"serving"`
	Eventing   Model `json:"eventing"`
	Kamelets   Model `json:"kamelets"`
	KafkaSinks Model `json:"kafkasinks"`
}

// Domain returns the model for d. DomainAll returns Merged().
func (t *Topology) Domain(d Domain) (Model, bool) {
	switch d {
	case DomainServing:
		return t.Serving, true
	case DomainEventing:
		return t.Eventing, true
	case DomainKamelets:
		return t.Kamelets, true
	case DomainKafkaSinks:
		return t.KafkaSinks, true
	case DomainAll, "":
		return t.Merged(), true
	default:
		return Model{}, false
	}
}

// Merged combines the domain models into one view. Nodes and edges are
// deduplicated by id (first wins), groups with the same id are unioned and
// edges whose endpoints are missing from the combined node set are dropped.
func (t *Topology) Merged() Model {
	parts := []Model{t.Serving, t.Eventing, t.Kamelets, t.KafkaSinks}
	var nodeCount, edgeCount int
	for _, m := range parts {
		nodeCount += len(m.Nodes)
		edgeCount += len(m.Edges)
	}
	out := Model{
		Nodes:  make([]TopologyNode, 0, nodeCount),
		Edges:  make([]TopologyEdge, 0, edgeCount),
		Groups: []TopologyGroup{},
	}
	seenNodes := sets.New[string]()
	for _, m := range parts {
		for _, n := range m.Nodes {
			if seenNodes.Has(n.ID) {
				continue
			}
			seenNodes.Insert(n.ID)
			out.Nodes = append(out.Nodes, n)
		}
	}
	seenEdges := sets.New[string]()
	for _, m := range parts {
		for _, e := range m.Edges {
			if seenEdges.Has(e.ID) || !seenNodes.HasAll(e.Source, e.Target) {
				continue
			}
			seenEdges.Insert(e.ID)
			out.Edges = append(out.Edges, e)
		}
	}
	groupIdx := map[string]int{}
	for _, m := range parts {
		for _, g := range m.Groups {
			i, ok := groupIdx[g.ID]
			if !ok {
				groupIdx[g.ID] = len(out.Groups)
				out.Groups = append(out.Groups, TopologyGroup{ID: g.ID, Name: g.Name, Nodes: append([]string(nil), g.Nodes...)})
				continue
			}
			for _, id := range g.Nodes {
				if !slices.Contains(out.Groups[i].Nodes, id) {
					out.Groups[i].Nodes = append(out.Groups[i].Nodes, id)
				}
			}
		}
	}
	return out
}
