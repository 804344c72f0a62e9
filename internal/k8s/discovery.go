package k8s

import (
	"context"
	"fmt"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

// CRD labels marking Knative duck types.
const (
	LabelDuckSource       = "duck.knative.dev/source"
	LabelDuckSubscribable = "messaging.knative.dev/subscribable"
)

// DiscoverKinds registers every event-source and channel CRD installed in
// the cluster. It returns how many kinds were added or refreshed.
func (c *Client) DiscoverKinds(ctx context.Context, registry *topology.Registry) (int, error) {
	sources, err := c.listCRDs(ctx, LabelDuckSource+"=true")
	if err != nil {
		return 0, fmt.Errorf("failed to list event source CRDs: %w", err)
	}
	channels, err := c.listCRDs(ctx, LabelDuckSubscribable+"=true")
	if err != nil {
		return 0, fmt.Errorf("failed to list channel CRDs: %w", err)
	}

	n := 0
	for i := range sources {
		if m, ok := kindModelFor(&sources[i]); ok {
			m.Kafka = m.GVK.Kind == topology.KindKafkaSource
			registry.AddEventSource(m)
			n++
		}
	}
	for i := range channels {
		if m, ok := kindModelFor(&channels[i]); ok {
			registry.AddChannel(m)
			n++
		}
	}
	return n, nil
}

func (c *Client) listCRDs(ctx context.Context, selector string) ([]apiextensionsv1.CustomResourceDefinition, error) {
	list, err := call(ctx, c, func(ctx context.Context) (*apiextensionsv1.CustomResourceDefinitionList, error) {
		return c.APIExtensions.ApiextensionsV1().CustomResourceDefinitions().List(ctx, metav1.ListOptions{LabelSelector: selector})
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// kindModelFor picks the storage version of crd, falling back to the first
// served one.
func kindModelFor(crd *apiextensionsv1.CustomResourceDefinition) (topology.KindModel, bool) {
	version := ""
	for _, v := range crd.Spec.Versions {
		if v.Storage && v.Served {
			version = v.Name
			break
		}
		if version == "" && v.Served {
			version = v.Name
		}
	}
	if version == "" || crd.Spec.Names.Kind == "" {
		return topology.KindModel{}, false
	}
	return topology.KindModel{
		GVK:      schema.GroupVersionKind{Group: crd.Spec.Group, Version: version, Kind: crd.Spec.Names.Kind},
		Resource: crd.Spec.Names.Plural,
	}, true
}
