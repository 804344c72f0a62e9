package topology

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// resourceClass is the pub/sub role a primary resource plays.
type resourceClass int

const (
	classOther resourceClass = iota
	classService
	classBroker
	classChannel
)

// candidateSet names the collections a relation draws candidates from.
type candidateSet int

const (
	candidateServices candidateSet = iota
	candidateBrokers
	candidateChannels
)

// linkPredicate decides whether link connects candidate and main.
type linkPredicate func(candidate, link, main *unstructured.Unstructured) bool

// pubSubRelation is one row of the subscriber/publisher table: candidates of
// one set, connected to the primary resource through link resources of one role.
type pubSubRelation struct {
	candidates candidateSet
	linkRole   string
	matches    linkPredicate
}

// pubSubRelations drives GetPubSubSubscribers. Services look for the brokers
// and channels publishing to them; brokers and channels look for the services
// subscribed to them.
var pubSubRelations = map[resourceClass][]pubSubRelation{
	classService: {
		{candidates: candidateBrokers, linkRole: RoleTriggers, matches: IsPublisher},
		{candidates: candidateChannels, linkRole: RoleSubscriptions, matches: IsPublisher},
	},
	classBroker: {
		{candidates: candidateServices, linkRole: RoleTriggers, matches: IsSubscriber},
	},
	classChannel: {
		{candidates: candidateServices, linkRole: RoleSubscriptions, matches: IsSubscriber},
	},
}

func (b *Builder) classify(obj *unstructured.Unstructured) resourceClass {
	if obj == nil {
		return classOther
	}
	gvk := obj.GroupVersionKind()
	switch {
	case gvk.Kind == KindService && gvk.Group == groupServing:
		return classService
	case gvk.Kind == KindBroker:
		return classBroker
	case b.registry.IsChannelKind(gvk.Kind):
		return classChannel
	default:
		return classOther
	}
}

func (b *Builder) candidates(set candidateSet, res models.Resources) []*unstructured.Unstructured {
	switch set {
	case candidateServices:
		return res.List(RoleServices)
	case candidateBrokers:
		return res.List(RoleBrokers)
	case candidateChannels:
		return b.allChannels(res)
	}
	return nil
}

func (b *Builder) allChannels(res models.Resources) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, m := range b.registry.Channels() {
		out = append(out, res.List(m.Role())...)
	}
	return out
}

func (b *Builder) allEventSources(res models.Resources) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, m := range b.registry.EventSources() {
		out = append(out, res.List(m.Role())...)
	}
	return out
}

// GetPubSubSubscribers resolves the resources on the other side of the
// Triggers and Subscriptions touching resource. Internal candidates are
// skipped; each subscriber lists the links that connect it.
func (b *Builder) GetPubSubSubscribers(resource *unstructured.Unstructured, res models.Resources) []models.Subscriber {
	relations := pubSubRelations[b.classify(resource)]
	var subscribers []models.Subscriber
	for _, rel := range relations {
		links := res.List(rel.linkRole)
		if len(links) == 0 {
			continue
		}
		for _, candidate := range b.candidates(rel.candidates, res) {
			if IsInternalResource(candidate) {
				continue
			}
			var data []models.SubscriberLink
			for _, link := range links {
				if !rel.matches(candidate, link, resource) {
					continue
				}
				data = append(data, models.SubscriberLink{
					Kind:      link.GetKind(),
					Name:      link.GetName(),
					Namespace: link.GetNamespace(),
					Filters:   TriggerFilters(link),
				})
			}
			if len(data) > 0 {
				subscribers = append(subscribers, models.Subscriber{
					Kind:      candidate.GetKind(),
					Name:      candidate.GetName(),
					Namespace: candidate.GetNamespace(),
					Data:      data,
				})
			}
		}
	}
	return subscribers
}

// GetSubscribedPubSubNodes returns the event sources feeding service, either
// directly through their sink or through a broker or channel the service is
// subscribed to. Results are unique by kind, namespace and name.
func (b *Builder) GetSubscribedPubSubNodes(service *unstructured.Unstructured, res models.Resources) []*unstructured.Unstructured {
	if service == nil {
		return nil
	}
	pubSubs := newObjectSet()
	for _, trigger := range res.List(RoleTriggers) {
		if IsInternalResource(trigger) {
			continue
		}
		ref, ok := nestedRef(trigger, "spec", "subscriber", "ref")
		if !ok || !refersTo(ref, service) {
			continue
		}
		for _, br := range res.List(RoleBrokers) {
			if triggersOn(trigger, br) {
				pubSubs.add(br)
			}
		}
	}
	channels := b.allChannels(res)
	for _, sub := range res.List(RoleSubscriptions) {
		if IsInternalResource(sub) {
			continue
		}
		ref, ok := nestedRef(sub, "spec", "subscriber", "ref")
		if !ok || !refersTo(ref, service) {
			continue
		}
		channelRef, ok := nestedRef(sub, "spec", "channel")
		if !ok {
			continue
		}
		for _, ch := range channels {
			if refersToNameKind(channelRef, ch) {
				pubSubs.add(ch)
			}
		}
	}

	sources := newObjectSet()
	eventSources := b.allEventSources(res)
	for _, ps := range pubSubs.items {
		for _, src := range eventSources {
			if ref, ok := SinkRef(src); ok && refersToNameKind(ref, ps) {
				sources.add(src)
			}
		}
	}
	for _, src := range eventSources {
		if ref, ok := SinkRef(src); ok && refersToNameKind(ref, service) {
			sources.add(src)
		}
	}
	return sources.items
}

// GetSubscriberByType splits subscribers into those that are channels and
// those that are not (brokers).
func (b *Builder) GetSubscriberByType(subscribers []models.Subscriber) (channelSubscribers, brokerSubscribers []models.Subscriber) {
	for _, s := range subscribers {
		if b.registry.IsChannelKind(s.Kind) {
			channelSubscribers = append(channelSubscribers, s)
		} else {
			brokerSubscribers = append(brokerSubscribers, s)
		}
	}
	return channelSubscribers, brokerSubscribers
}

// objectSet keeps insertion order and drops repeats by kind, namespace and
// name.
type objectSet struct {
	seen  sets.Set[string]
	items []*unstructured.Unstructured
}

func newObjectSet() *objectSet {
	return &objectSet{seen: sets.New[string]()}
}

func (s *objectSet) add(obj *unstructured.Unstructured) {
	key := obj.GetKind() + "/" + obj.GetNamespace() + "/" + obj.GetName()
	if s.seen.Has(key) {
		return
	}
	s.seen.Insert(key)
	s.items = append(s.items, obj)
}
