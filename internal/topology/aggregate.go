package topology

import (
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

// Enricher contributes fields to an aggregated item. Enrichers run in order
// and each result is merged over the item, so a field set by a later
// enricher replaces the value set by an earlier one.
type Enricher func(item models.Item, res models.Resources) models.Item

func applyEnrichers(item models.Item, res models.Resources, enrichers []Enricher) models.Item {
	for _, enrich := range enrichers {
		if enrich == nil {
			continue
		}
		item = item.Merge(enrich(item, res))
	}
	return item
}

// AggregateDeploymentItem gathers what a workload-style resource needs to
// render. Resources backed by a Deployment (directly, or through a Camel
// Integration they own) get the deployment; everything else gets its
// serving chain and pub/sub relations.
func (b *Builder) AggregateDeploymentItem(resource *unstructured.Unstructured, res models.Resources, enrichers ...Enricher) models.Item {
	item := models.Item{Obj: resource}
	deployments := b.ownedDeployments(resource, res)
	if len(deployments) > 0 {
		item.AssociatedDeployment = deployments[0]
		item.Deployments = deployments
		return applyEnrichers(item, res, enrichers)
	}

	item.Configurations = GetOwnedResources(resource, res.List(RoleConfigurations))
	if len(item.Configurations) > 0 {
		item.Revisions = GetOwnedResources(item.Configurations[0], res.List(RoleRevisions))
	}
	item.Routes = GetOwnedResources(resource, res.List(RoleRoutes))
	item.EventSources = b.GetSubscribedPubSubNodes(resource, res)
	item.Subscribers = b.GetPubSubSubscribers(resource, res)
	return applyEnrichers(item, res, enrichers)
}

func (b *Builder) ownedDeployments(resource *unstructured.Unstructured, res models.Resources) []*unstructured.Unstructured {
	all := res.List(RoleDeployments)
	owned := GetOwnedResources(resource, all)
	switch resource.GetKind() {
	case KindCamelSource, KindKameletBinding:
		seen := sets.New[string]()
		for _, d := range owned {
			seen.Insert(string(d.GetUID()))
		}
		for _, integration := range GetOwnedResources(resource, res.List(RoleIntegrations)) {
			for _, d := range GetOwnedResources(integration, all) {
				if !seen.Has(string(d.GetUID())) {
					seen.Insert(string(d.GetUID()))
					owned = append(owned, d)
				}
			}
		}
	}
	return owned
}

// AggregatePubSubItem gathers what a Channel or Broker needs to render: the
// channels it owns, its subscriptions and triggers with their target
// services, the event sources sinking into it, and for brokers the workloads
// labelled with its name.
func (b *Builder) AggregatePubSubItem(resource *unstructured.Unstructured, res models.Resources) models.Item {
	item := models.Item{Obj: resource}
	services := res.List(RoleServices)
	targets := newObjectSet()

	item.OwnedChannels = GetOwnedResources(resource, b.allChannels(res))

	uids := subscriberUIDs(resource)
	for _, sub := range res.List(RoleSubscriptions) {
		if !uids.Has(string(sub.GetUID())) {
			continue
		}
		item.EventingSubscription = append(item.EventingSubscription, sub)
		if svc := linkTarget(sub, services); svc != nil {
			targets.add(svc)
		}
	}

	if resource.GetKind() == KindBroker {
		for _, trigger := range res.List(RoleTriggers) {
			if !triggersOn(trigger, resource) {
				continue
			}
			item.Triggers = append(item.Triggers, trigger)
			if svc := linkTarget(trigger, services); svc != nil {
				targets.add(svc)
			}
		}
		selector := labels.SelectorFromSet(labels.Set{LabelBroker: resource.GetName()})
		item.Pods = selectLabelled(res.List(RolePods), resource.GetNamespace(), selector)
		item.Deployments = selectLabelled(res.List(RoleDeployments), resource.GetNamespace(), selector)
	}

	item.KsServices = targets.items
	item.EventSources = b.sourcesSinkingTo(resource, res)
	item.Subscribers = b.GetPubSubSubscribers(resource, res)
	return item
}

// sourcesSinkingTo returns the event sources whose sink ref names target.
func (b *Builder) sourcesSinkingTo(target *unstructured.Unstructured, res models.Resources) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, src := range b.allEventSources(res) {
		if ref, ok := SinkRef(src); ok && refersToNameKind(ref, target) {
			out = append(out, src)
		}
	}
	return out
}

// subscriberUIDs collects the subscription uids a channel or broker lists in
// spec.subscribable.subscribers or spec.subscribers.
func subscriberUIDs(resource *unstructured.Unstructured) sets.Set[string] {
	uids := sets.New[string]()
	for _, path := range [][]string{{"spec", "subscribable", "subscribers"}, {"spec", "subscribers"}} {
		v, found, err := unstructured.NestedFieldNoCopy(resource.Object, path...)
		if err != nil || !found {
			continue
		}
		list, ok := v.([]interface{})
		if !ok {
			continue
		}
		for _, entry := range list {
			m, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			if uid := stringField(m, "uid"); uid != "" {
				uids.Insert(uid)
			}
		}
	}
	return uids
}

// linkTarget resolves the subscriber ref of a Trigger or Subscription among
// services.
func linkTarget(link *unstructured.Unstructured, services []*unstructured.Unstructured) *unstructured.Unstructured {
	ref, ok := nestedRef(link, "spec", "subscriber", "ref")
	if !ok {
		return nil
	}
	for _, svc := range services {
		if refersTo(ref, svc) {
			return svc
		}
	}
	return nil
}

func selectLabelled(objs []*unstructured.Unstructured, namespace string, selector labels.Selector) []*unstructured.Unstructured {
	var out []*unstructured.Unstructured
	for _, o := range objs {
		if namespace != "" && o.GetNamespace() != namespace {
			continue
		}
		if selector.Matches(labels.Set(o.GetLabels())) {
			out = append(out, o)
		}
	}
	return out
}

// ServicePodsEnricher adds the pods labelled with a Knative service's name.
func ServicePodsEnricher(item models.Item, res models.Resources) models.Item {
	obj := item.Obj
	if obj == nil || obj.GetKind() != KindService || obj.GroupVersionKind().Group != groupServing {
		return models.Item{}
	}
	selector := labels.SelectorFromSet(labels.Set{LabelServingService: obj.GetName()})
	return models.Item{Pods: selectLabelled(res.List(RolePods), obj.GetNamespace(), selector)}
}

// DeploymentPodsEnricher adds the pods selected by the item's deployment.
func DeploymentPodsEnricher(item models.Item, res models.Resources) models.Item {
	if item.AssociatedDeployment == nil {
		return models.Item{}
	}
	var deployment appsv1.Deployment
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.AssociatedDeployment.Object, &deployment); err != nil {
		return models.Item{}
	}
	if deployment.Spec.Selector == nil {
		return models.Item{}
	}
	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil || selector.Empty() {
		return models.Item{}
	}
	return models.Item{Pods: selectLabelled(res.List(RolePods), deployment.Namespace, selector)}
}
