package topology

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// groupIDPrefix prefixes the id of application groups.
const groupIDPrefix = "group:"

// Graph accumulates the nodes, edges and groups of one domain model.
type Graph struct {
	Nodes  []models.TopologyNode
	Edges  []models.TopologyEdge
	Groups []models.TopologyGroup

	nodeIndex  map[string]int
	edgeIndex  map[string]int
	groupIndex map[string]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:      []models.TopologyNode{},
		Edges:      []models.TopologyEdge{},
		Groups:     []models.TopologyGroup{},
		nodeIndex:  map[string]int{},
		edgeIndex:  map[string]int{},
		groupIndex: map[string]int{},
	}
}

// EdgeID is the id of the edge from source to target.
func EdgeID(source, target string) string {
	return source + "_" + target
}

// AddNode appends node unless a node with the same id exists. It reports
// whether the node was added.
func (g *Graph) AddNode(node models.TopologyNode) bool {
	if node.ID == "" {
		return false
	}
	if _, exists := g.nodeIndex[node.ID]; exists {
		return false
	}
	g.nodeIndex[node.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, node)
	return true
}

// GetNode returns the node with id, or nil. The pointer is valid until the
// next AddNode or RemoveNodes.
func (g *Graph) GetNode(id string) *models.TopologyNode {
	i, ok := g.nodeIndex[id]
	if !ok {
		return nil
	}
	return &g.Nodes[i]
}

// HasNode reports whether a node with id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// AddEdge appends edge unless an edge with the same id exists.
func (g *Graph) AddEdge(edge models.TopologyEdge) bool {
	if edge.Source == "" || edge.Target == "" {
		return false
	}
	if edge.ID == "" {
		edge.ID = EdgeID(edge.Source, edge.Target)
	}
	if _, exists := g.edgeIndex[edge.ID]; exists {
		return false
	}
	g.edgeIndex[edge.ID] = len(g.Edges)
	g.Edges = append(g.Edges, edge)
	return true
}

// GetEdge returns the edge with id, or nil.
func (g *Graph) GetEdge(id string) *models.TopologyEdge {
	i, ok := g.edgeIndex[id]
	if !ok {
		return nil
	}
	return &g.Edges[i]
}

// AddTrafficEdge records percent of traffic from a service to a revision.
// Repeated calls for the same pair add up on a single edge.
func (g *Graph) AddTrafficEdge(source, target string, percent int) {
	id := EdgeID(source, target)
	if existing := g.GetEdge(id); existing != nil {
		if existing.Data == nil {
			existing.Data = &models.EdgeData{}
		}
		sum := percent
		if existing.Data.Percent != nil {
			sum += *existing.Data.Percent
		}
		existing.Data.Percent = &sum
		return
	}
	p := percent
	g.AddEdge(models.TopologyEdge{
		ID:     id,
		Type:   models.EdgeTypeTraffic,
		Source: source,
		Target: target,
		Data:   &models.EdgeData{Percent: &p},
	})
}

// MergeGroup adds nodeID to the group named label, creating it on first use.
func (g *Graph) MergeGroup(label, nodeID string) {
	if label == "" || nodeID == "" {
		return
	}
	id := groupIDPrefix + label
	if i, ok := g.groupIndex[id]; ok {
		for _, n := range g.Groups[i].Nodes {
			if n == nodeID {
				return
			}
		}
		g.Groups[i].Nodes = append(g.Groups[i].Nodes, nodeID)
		return
	}
	g.groupIndex[id] = len(g.Groups)
	g.Groups = append(g.Groups, models.TopologyGroup{ID: id, Name: label, Nodes: []string{nodeID}})
}

// RemoveNodes drops the nodes with the given ids together with their edges
// and group memberships. Groups left empty are dropped too.
func (g *Graph) RemoveNodes(ids sets.Set[string]) {
	if ids.Len() == 0 {
		return
	}
	nodes := make([]models.TopologyNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if !ids.Has(n.ID) {
			nodes = append(nodes, n)
		}
	}
	edges := make([]models.TopologyEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if !ids.Has(e.Source) && !ids.Has(e.Target) {
			edges = append(edges, e)
		}
	}
	groups := make([]models.TopologyGroup, 0, len(g.Groups))
	for _, grp := range g.Groups {
		kept := make([]string, 0, len(grp.Nodes))
		for _, id := range grp.Nodes {
			if !ids.Has(id) {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			grp.Nodes = kept
			groups = append(groups, grp)
		}
	}
	g.Nodes, g.Edges, g.Groups = nodes, edges, groups
	g.reindex()
}

// PruneEdges drops edges whose endpoints are not in known.
func (g *Graph) PruneEdges(known sets.Set[string]) {
	edges := make([]models.TopologyEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if known.Has(e.Source) && known.Has(e.Target) {
			edges = append(edges, e)
		}
	}
	g.Edges = edges
	g.reindex()
}

func (g *Graph) reindex() {
	g.nodeIndex = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.nodeIndex[n.ID] = i
	}
	g.edgeIndex = make(map[string]int, len(g.Edges))
	for i, e := range g.Edges {
		g.edgeIndex[e.ID] = i
	}
	g.groupIndex = make(map[string]int, len(g.Groups))
	for i, grp := range g.Groups {
		g.groupIndex[grp.ID] = i
	}
}

// NodeIDs returns the ids of all nodes.
func (g *Graph) NodeIDs() sets.Set[string] {
	ids := sets.New[string]()
	for _, n := range g.Nodes {
		ids.Insert(n.ID)
	}
	return ids
}

// Model returns the accumulated graph.
func (g *Graph) Model() models.Model {
	return models.Model{Nodes: g.Nodes, Edges: g.Edges, Groups: g.Groups}
}

// Validate checks node id uniqueness and that every edge joins known nodes.
func (g *Graph) Validate() error {
	if len(g.Nodes) != len(g.nodeIndex) {
		return fmt.Errorf("duplicate node IDs detected")
	}
	for _, edge := range g.Edges {
		if !g.HasNode(edge.Source) {
			return fmt.Errorf("edge %s references non-existent source node: %s", edge.ID, edge.Source)
		}
		if !g.HasNode(edge.Target) {
			return fmt.Errorf("edge %s references non-existent target node: %s", edge.ID, edge.Target)
		}
	}
	return nil
}
