package topology

import (
	"log/slog"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// Builder turns a resource snapshot into per-domain topology models. It
// holds no per-build state, so one Builder may serve concurrent builds.
type Builder struct {
	registry  *Registry
	logger    *slog.Logger
	enrichers []Enricher
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for debug output about unresolved relations.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithEnrichers appends enrichers after the default ones.
func WithEnrichers(enrichers ...Enricher) Option {
	return func(b *Builder) {
		b.enrichers = append(b.enrichers, enrichers...)
	}
}

// NewBuilder creates a builder over registry (a default registry when nil).
func NewBuilder(registry *Registry, opts ...Option) *Builder {
	if registry == nil {
		registry = NewRegistry()
	}
	b := &Builder{
		registry:  registry,
		logger:    slog.New(slog.DiscardHandler),
		enrichers: []Enricher{ServicePodsEnricher, DeploymentPodsEnricher},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry returns the kind registry the builder reads.
func (b *Builder) Registry() *Registry {
	return b.registry
}

// Build constructs every domain model from res. Edges whose endpoints were
// not produced by any domain are dropped.
func (b *Builder) Build(res models.Resources) models.Topology {
	graphs := []*Graph{
		b.buildServing(res),
		b.buildEventing(res),
		b.buildKamelets(res),
		b.buildKafkaSinks(res),
	}
	known := sets.New[string]()
	for _, g := range graphs {
		known = known.Union(g.NodeIDs())
	}
	for _, g := range graphs {
		g.PruneEdges(known)
	}
	return models.Topology{
		Serving:    graphs[0].Model(),
		Eventing:   graphs[1].Model(),
		Kamelets:   graphs[2].Model(),
		KafkaSinks: graphs[3].Model(),
	}
}

// BuildDomain builds res and returns the model of one domain, or the merged
// view for DomainAll. ok is false for an unknown domain.
func (b *Builder) BuildDomain(res models.Resources, domain models.Domain) (models.Model, bool) {
	t := b.Build(res)
	return t.Domain(domain)
}

// addNodes adds the nodes built for resource and merges each into the group
// named by its part-of label.
func (b *Builder) addNodes(g *Graph, resource *unstructured.Unstructured, nodeType models.NodeType, item models.Item, res models.Resources) {
	for _, node := range b.BuildNodesFor(resource, nodeType, item, res) {
		if !g.AddNode(node) {
			continue
		}
		if label := node.Resource.GetLabels()[LabelPartOf]; label != "" {
			g.MergeGroup(label, node.ID)
		}
	}
}

func (b *Builder) buildServing(res models.Resources) *Graph {
	g := NewGraph()
	revisions := res.List(RoleRevisions)
	for _, svc := range res.List(RoleServices) {
		item := b.AggregateDeploymentItem(svc, res, b.enrichers...)
		b.addNodes(g, svc, models.NodeTypeKnService, item, res)
		b.addTrafficEdges(g, svc, revisions)
	}
	for _, rev := range revisions {
		node := g.GetNode(string(rev.GetUID()))
		if node == nil {
			continue
		}
		item := b.AggregateDeploymentItem(rev, res, b.enrichers...)
		node.Resources = &item
	}
	b.finishRevisions(g, res)
	return g
}

// finishRevisions fills the revision detail of every service's children and
// drops services generated for a KameletBinding, with their revisions.
func (b *Builder) finishRevisions(g *Graph, res models.Resources) {
	integrations := res.List(RoleIntegrations)
	bindings := res.List(RoleKameletBindings)
	removed := sets.New[string]()
	for _, svc := range res.List(RoleServices) {
		node := g.GetNode(string(svc.GetUID()))
		if node == nil || node.Type != models.NodeTypeKnService {
			continue
		}
		if ownedByKameletBinding(svc, integrations, bindings) {
			removed.Insert(node.ID)
			removed.Insert(node.Children...)
			continue
		}
		traffic := trafficTargets(svc)
		latest := nestedString(svc, "status", "latestReadyRevisionName")
		for _, childID := range node.Children {
			child := g.GetNode(childID)
			if child == nil {
				continue
			}
			name := child.Data.Name
			var percent *int
			var tags []string
			for _, t := range traffic {
				if t.RevisionName != name {
					continue
				}
				sum := t.Percent
				if percent != nil {
					sum += *percent
				}
				percent = &sum
				if t.Tag != "" {
					tags = append(tags, t.Tag)
				}
			}
			child.Data.Traffic = percent
			child.Data.Tags = tags
			child.Data.Latest = latest != "" && latest == name
			child.Data.Service = svc.GetName()
		}
	}
	g.RemoveNodes(removed)
}

func ownedByKameletBinding(svc *unstructured.Unstructured, integrations, bindings []*unstructured.Unstructured) bool {
	integration := GetParentResource(svc, integrations)
	if integration == nil {
		return false
	}
	return GetParentResource(integration, bindings) != nil
}

// sinkCandidates are the resources an event source may name as its sink.
func (b *Builder) sinkCandidates(res models.Resources) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	out = append(out, res.List(RoleServices)...)
	out = append(out, res.List(RoleBrokers)...)
	out = append(out, b.allChannels(res)...)
	out = append(out, res.List(RoleKafkaSinks)...)
	out = append(out, kameletSinks(res)...)
	return out
}

// kameletSinks returns the KameletBindings that write to a Kamelet, the
// ones rendered as event sinks.
func kameletSinks(res models.Resources) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, binding := range res.List(RoleKameletBindings) {
		if ref, ok := nestedRef(binding, "spec", "sink", "ref"); ok && ref.Kind == KindKamelet {
			out = append(out, binding)
		}
	}
	return out
}

func (b *Builder) buildEventing(res models.Resources) *Graph {
	g := NewGraph()
	connections := res.List(RoleKafkaConnections)
	candidates := b.sinkCandidates(res)

	for _, m := range b.registry.EventSources() {
		nodeType := models.NodeTypeEventSource
		if m.Kafka {
			nodeType = models.NodeTypeEventSourceKafka
		}
		for _, src := range res.List(m.Role()) {
			item := b.AggregateDeploymentItem(src, res, b.enrichers...)
			if m.Kafka {
				for _, conn := range connections {
					if KafkaSourceUsesConnection(src, conn) {
						item.KafkaConnections = append(item.KafkaConnections, conn)
					}
				}
			}
			b.addNodes(g, src, nodeType, item, res)
			b.addEventSourceEdges(g, src, candidates)
			b.addSinkURIEdges(g, src, res)
			if m.Kafka {
				b.addKafkaConnectionEdges(g, src, connections)
			}
		}
	}

	for _, ch := range b.allChannels(res) {
		if IsInternalResource(ch) {
			continue
		}
		item := b.AggregatePubSubItem(ch, res)
		b.addNodes(g, ch, models.NodeTypePubSub, item, res)
		b.addSubscriptionEdges(g, ch, item, res)
	}

	for _, br := range res.List(RoleBrokers) {
		item := b.AggregatePubSubItem(br, res)
		b.addNodes(g, br, models.NodeTypePubSub, item, res)
		b.addTriggerEdges(g, br, item, res)
	}

	for _, conn := range connections {
		b.addNodes(g, conn, models.NodeTypeKafka, models.Item{Obj: conn}, res)
	}
	return g
}

// buildKamelets renders KameletBindings: a binding reading from a Kamelet is
// an event source, a binding writing to a Kamelet is an event sink fed by
// its source ref.
func (b *Builder) buildKamelets(res models.Resources) *Graph {
	g := NewGraph()
	candidates := b.sinkCandidates(res)
	sources := append(b.allChannels(res), res.List(RoleBrokers)...)
	sources = append(sources, res.List(RoleServices)...)

	for _, binding := range res.List(RoleKameletBindings) {
		if ref, ok := nestedRef(binding, "spec", "source", "ref"); ok && ref.Kind == KindKamelet {
			item := b.AggregateDeploymentItem(binding, res, b.enrichers...)
			b.addNodes(g, binding, models.NodeTypeEventSource, item, res)
			b.addEventSourceEdges(g, binding, candidates)
			b.addSinkURIEdges(g, binding, res)
			continue
		}
		if ref, ok := nestedRef(binding, "spec", "sink", "ref"); ok && ref.Kind == KindKamelet {
			item := b.AggregateDeploymentItem(binding, res, b.enrichers...)
			b.addNodes(g, binding, models.NodeTypeEventSink, item, res)
			source, ok := nestedRef(binding, "spec", "source", "ref")
			if !ok {
				continue
			}
			target := string(binding.GetUID())
			for _, c := range sources {
				if !refersToNameKind(source, c) {
					continue
				}
				id := string(c.GetUID())
				g.AddEdge(models.TopologyEdge{
					ID:     EdgeID(id, target),
					Type:   models.EdgeTypeEventSource,
					Source: id,
					Target: target,
				})
			}
		}
	}
	return g
}

func (b *Builder) buildKafkaSinks(res models.Resources) *Graph {
	g := NewGraph()
	for _, ks := range res.List(RoleKafkaSinks) {
		b.addNodes(g, ks, models.NodeTypeEventSink, models.Item{Obj: ks}, res)
	}
	return g
}
