package topologycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-knative/internal/models"
)

func topo(id string) *models.Topology {
	return &models.Topology{Serving: models.Model{Nodes: []models.TopologyNode{{ID: id}}}}
}

func TestCacheGetSet(t *testing.T) {
	c := New(10, time.Minute)

	_, ok := c.Get("kind", "demo")
	assert.False(t, ok)

	c.Set("kind", "demo", topo("S1"))
	got, ok := c.Get("kind", "demo")
	require.True(t, ok)
	assert.Equal(t, "S1", got.Serving.Nodes[0].ID)

	_, ok = c.Get("kind", "other")
	assert.False(t, ok)
}

func TestCacheDisabled(t *testing.T) {
	c := New(10, 0)
	c.Set("kind", "demo", topo("S1"))

	_, ok := c.Get("kind", "demo")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheExpiry(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	c.Set("kind", "demo", topo("S1"))

	assert.Eventually(t, func() bool {
		_, ok := c.Get("kind", "demo")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCacheInvalidate(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("kind", "a", topo("A"))
	c.Set("kind", "b", topo("B"))
	c.Set("prod", "a", topo("P"))

	c.InvalidateNamespace("kind", "a")
	_, ok := c.Get("kind", "a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.InvalidateContext("kind")
	assert.Equal(t, 1, c.Len())
	_, ok = c.Get("prod", "a")
	assert.True(t, ok)
}
