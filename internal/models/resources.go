package models

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ResourceCollection is one watched list of resources of a single kind.
type ResourceCollection struct {
	Loaded    bool                        `json:"loaded"`
	LoadError string                      `json:"loadError,omitempty"`
	Data      []unstructured.Unstructured `json:"data"`
}

// Resources maps a resource role (e.g. "ksservices") to its collection.
type Resources map[string]*ResourceCollection

// List returns pointers into the collection for role. Missing or not yet
// loaded collections yield nil.
func (r Resources) List(role string) []*unstructured.Unstructured {
	c, ok := r[role]
	if !ok || c == nil || !c.Loaded {
		return nil
	}
	out := make([]*unstructured.Unstructured, len(c.Data))
	for i := range c.Data {
		out[i] = &c.Data[i]
	}
	return out
}

// Set stores items as a loaded collection for role.
func (r Resources) Set(role string, items []unstructured.Unstructured) {
	r[role] = &ResourceCollection{Loaded: true, Data: items}
}

// Add appends one object to the collection for role, creating it if needed.
func (r Resources) Add(role string, obj unstructured.Unstructured) {
	c, ok := r[role]
	if !ok || c == nil {
		c = &ResourceCollection{Loaded: true}
		r[role] = c
	}
	c.Data = append(c.Data, obj)
}

// FilterPair is one flattened trigger attribute filter.
type FilterPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SubscriberLink names the Trigger or Subscription connecting a subscriber.
type SubscriberLink struct {
	Kind      string       `json:"kind"`
	Name      string       `json:"name"`
	Namespace string       `json:"namespace"`
	Filters   []FilterPair `json:"filters"`
}

// Subscriber is a resource on the other end of one or more pub/sub links.
type Subscriber struct {
	Kind      string           `json:"kind"`
	Name      string           `json:"name"`
	Namespace string           `json:"namespace"`
	Data      []SubscriberLink `json:"data"`
}

// Item is everything gathered for one primary resource.
type Item struct {
	Obj                  *unstructured.Unstructured   `json:"obj"`
	AssociatedDeployment *unstructured.Unstructured   `json:"associatedDeployment,omitempty"`
	Deployments          []*unstructured.Unstructured `json:"deployments,omitempty"`
	Pods                 []*unstructured.Unstructured `json:"pods,omitempty"`
	Configurations       []*unstructured.Unstructured `json:"configurations,omitempty"`
	Revisions            []*unstructured.Unstructured `json:"revisions,omitempty"`
	Routes               []*unstructured.Unstructured `json:"ksroutes,omitempty"`
	EventSources         []*unstructured.Unstructured `json:"eventSources,omitempty"`
	EventingSubscription []*unstructured.Unstructured `json:"eventingsubscription,omitempty"`
	Triggers             []*unstructured.Unstructured `json:"triggers,omitempty"`
	KsServices           []*unstructured.Unstructured `json:"ksservices,omitempty"`
	OwnedChannels        []*unstructured.Unstructured `json:"channels,omitempty"`
	KafkaConnections     []*unstructured.Unstructured `json:"kafkaConnections,omitempty"`
	Subscribers          []Subscriber                 `json:"subscribers,omitempty"`
}

// Merge overlays every non-empty field of other onto a copy of i. Fields
// set by other replace those already present.
func (i Item) Merge(other Item) Item {
	if other.Obj != nil {
		i.Obj = other.Obj
	}
	if other.AssociatedDeployment != nil {
		i.AssociatedDeployment = other.AssociatedDeployment
	}
	if other.Deployments != nil {
		i.Deployments = other.Deployments
	}
	if other.Pods != nil {
		i.Pods = other.Pods
	}
	if other.Configurations != nil {
		i.Configurations = other.Configurations
	}
	if other.Revisions != nil {
		i.Revisions = other.Revisions
	}
	if other.Routes != nil {
		i.Routes = other.Routes
	}
	if other.EventSources != nil {
		i.EventSources = other.EventSources
	}
	if other.EventingSubscription != nil {
		i.EventingSubscription = other.EventingSubscription
	}
	if other.Triggers != nil {
		i.Triggers = other.Triggers
	}
	if other.KsServices != nil {
		i.KsServices = other.KsServices
	}
	if other.OwnedChannels != nil {
		i.OwnedChannels = other.OwnedChannels
	}
	if other.KafkaConnections != nil {
		i.KafkaConnections = other.KafkaConnections
	}
	if other.Subscribers != nil {
		i.Subscribers = other.Subscribers
	}
	return i
}
