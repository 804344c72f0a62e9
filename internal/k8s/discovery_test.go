package k8s

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

func crd(group, kind, plural string, labels map[string]string, versions ...apiextensionsv1.CustomResourceDefinitionVersion) *apiextensionsv1.CustomResourceDefinition {
	return &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: plural + "." + group, Labels: labels},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group:    group,
			Names:    apiextensionsv1.CustomResourceDefinitionNames{Kind: kind, Plural: plural},
			Versions: versions,
		},
	}
}

func served(name string, storage bool) apiextensionsv1.CustomResourceDefinitionVersion {
	return apiextensionsv1.CustomResourceDefinitionVersion{Name: name, Served: true, Storage: storage}
}

func TestDiscoverKinds(t *testing.T) {
	registry := topology.NewRegistry()
	client := newTestClient(newFakeDynamic(registry),
		crd("sources.example.dev", "GitHubSource", "githubsources",
			map[string]string{LabelDuckSource: "true"}, served("v1alpha1", false), served("v1", true)),
		crd("sources.knative.dev", "KafkaSource", "kafkasources",
			map[string]string{LabelDuckSource: "true"}, served("v1", true)),
		crd("messaging.example.dev", "NatssChannel", "natsschannels",
			map[string]string{LabelDuckSubscribable: "true"}, served("v1beta1", true)),
		crd("example.dev", "Widget", "widgets", nil, served("v1", true)),
	)

	n, err := client.DiscoverKinds(context.Background(), registry)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.True(t, registry.IsEventSourceKind("GitHubSource"))
	assert.True(t, registry.IsChannelKind("NatssChannel"))
	assert.False(t, registry.IsEventSourceKind("Widget"))
	assert.True(t, registry.IsKafkaSourceKind("KafkaSource"))

	for _, m := range registry.EventSources() {
		switch m.GVK.Kind {
		case "GitHubSource":
			assert.Equal(t, "v1", m.GVK.Version, "storage version wins")
			assert.Equal(t, "githubsources", m.Resource)
		case "KafkaSource":
			assert.Equal(t, "v1", m.GVK.Version)
		}
	}
}

func TestKindModelForSkipsUnserved(t *testing.T) {
	c := crd("sources.example.dev", "OldSource", "oldsources", nil,
		apiextensionsv1.CustomResourceDefinitionVersion{Name: "v1", Served: false, Storage: true})
	_, ok := kindModelFor(c)
	assert.False(t, ok)

	c = crd("sources.example.dev", "NewSource", "newsources", nil, served("v1beta1", false))
	m, ok := kindModelFor(c)
	require.True(t, ok)
	assert.Equal(t, "v1beta1", m.GVK.Version)
}
