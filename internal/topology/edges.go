package topology

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// addTrafficEdges links service to every revision named in its
// status.traffic, summing the percent of repeated entries.
func (b *Builder) addTrafficEdges(g *Graph, service *unstructured.Unstructured, revisions []*unstructured.Unstructured) {
	serviceID := string(service.GetUID())
	for _, t := range trafficTargets(service) {
		rev := findByName(revisions, service.GetNamespace(), t.RevisionName)
		if rev == nil || !g.HasNode(string(rev.GetUID())) {
			b.logger.Debug("traffic target not found", "service", service.GetName(), "revision", t.RevisionName)
			continue
		}
		g.AddTrafficEdge(serviceID, string(rev.GetUID()), t.Percent)
	}
}

// addEventSourceEdges links source to each candidate named by its sink ref.
func (b *Builder) addEventSourceEdges(g *Graph, source *unstructured.Unstructured, candidates []*unstructured.Unstructured) {
	ref, ok := SinkRef(source)
	if !ok {
		return
	}
	sourceID := string(source.GetUID())
	for _, c := range candidates {
		if !refersToNameKind(ref, c) {
			continue
		}
		target := string(c.GetUID())
		g.AddEdge(models.TopologyEdge{
			ID:     EdgeID(sourceID, target),
			Type:   models.EdgeTypeEventSource,
			Source: sourceID,
			Target: target,
		})
	}
}

// addSinkURIEdges creates the sink URI node for a source sinking to a bare
// URI and links the source to it. Brokers and channels are probed as ref
// sinks as well.
func (b *Builder) addSinkURIEdges(g *Graph, source *unstructured.Unstructured, res models.Resources) {
	uri := SinkURI(source)
	if uri != "" {
		node := newSinkURINode(uri, source.GetNamespace())
		g.AddNode(node)
		sourceID := string(source.GetUID())
		g.AddEdge(models.TopologyEdge{
			ID:     EdgeID(sourceID, node.ID),
			Type:   models.EdgeTypeEventSource,
			Source: sourceID,
			Target: node.ID,
		})
	}
	candidates := append(b.allChannels(res), res.List(RoleBrokers)...)
	b.addEventSourceEdges(g, source, candidates)
}

// addTriggerEdges links broker to the services its triggers deliver to.
func (b *Builder) addTriggerEdges(g *Graph, broker *unstructured.Unstructured, item models.Item, res models.Resources) {
	services := res.List(RoleServices)
	brokerID := string(broker.GetUID())
	for _, trigger := range res.List(RoleTriggers) {
		if !triggersOn(trigger, broker) {
			continue
		}
		svc := linkTarget(trigger, services)
		if svc == nil {
			b.logger.Debug("trigger subscriber not found", "trigger", trigger.GetName(), "broker", broker.GetName())
			continue
		}
		target := string(svc.GetUID())
		g.AddEdge(models.TopologyEdge{
			ID:     EdgeID(brokerID, target),
			Type:   models.EdgeTypeEventPubSubLink,
			Source: brokerID,
			Target: target,
			Data: &models.EdgeData{Resources: &models.EdgeResources{
				Obj:          trigger,
				EventSources: item.EventSources,
				Brokers:      []*unstructured.Unstructured{broker},
				KsServices:   []*unstructured.Unstructured{svc},
				Filters:      TriggerFilters(trigger),
			}},
		})
	}
}

// addSubscriptionEdges links channel to the services its subscriptions
// deliver to.
func (b *Builder) addSubscriptionEdges(g *Graph, channel *unstructured.Unstructured, item models.Item, res models.Resources) {
	services := res.List(RoleServices)
	channelID := string(channel.GetUID())
	for _, sub := range res.List(RoleSubscriptions) {
		ref, ok := nestedRef(sub, "spec", "channel")
		if !ok || !refersToNameKind(ref, channel) {
			continue
		}
		svc := linkTarget(sub, services)
		if svc == nil {
			b.logger.Debug("subscription subscriber not found", "subscription", sub.GetName(), "channel", channel.GetName())
			continue
		}
		target := string(svc.GetUID())
		g.AddEdge(models.TopologyEdge{
			ID:     EdgeID(channelID, target),
			Type:   models.EdgeTypeEventPubSubLink,
			Source: channelID,
			Target: target,
			Data: &models.EdgeData{Resources: &models.EdgeResources{
				Obj:          sub,
				EventSources: item.EventSources,
				Channels:     []*unstructured.Unstructured{channel},
				KsServices:   []*unstructured.Unstructured{svc},
				Filters:      []models.FilterPair{},
			}},
		})
	}
}

// addKafkaConnectionEdges links a kafka source to the connections whose
// bootstrap host and service account secret it uses.
func (b *Builder) addKafkaConnectionEdges(g *Graph, source *unstructured.Unstructured, connections []*unstructured.Unstructured) {
	sourceID := string(source.GetUID())
	for _, conn := range connections {
		if !KafkaSourceUsesConnection(source, conn) {
			continue
		}
		target := string(conn.GetUID())
		g.AddEdge(models.TopologyEdge{
			ID:     EdgeID(sourceID, target),
			Type:   models.EdgeTypeEventSourceKafkaLink,
			Source: sourceID,
			Target: target,
		})
	}
}

// KafkaSourceUsesConnection reports whether source lists the connection's
// bootstrap host and reads both SASL user and password from the
// connection's service account secret.
func KafkaSourceUsesConnection(source, connection *unstructured.Unstructured) bool {
	host := nestedString(connection, "status", "bootstrapServerHost")
	secret := nestedString(connection, "spec", "credentials", "serviceAccountSecretName")
	if host == "" || secret == "" {
		return false
	}
	servers, _, _ := unstructured.NestedStringSlice(source.Object, "spec", "bootstrapServers")
	listed := false
	for _, s := range servers {
		if s == host {
			listed = true
			break
		}
	}
	if !listed {
		return false
	}
	user := nestedString(source, "spec", "net", "sasl", "user", "secretKeyRef", "name")
	password := nestedString(source, "spec", "net", "sasl", "password", "secretKeyRef", "name")
	return user == secret && password == secret
}

func findByName(objs []*unstructured.Unstructured, namespace, name string) *unstructured.Unstructured {
	for _, o := range objs {
		if o.GetNamespace() == namespace && o.GetName() == name {
			return o
		}
	}
	return nil
}
