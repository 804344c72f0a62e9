// Package topologycache keeps built Knative topologies per (context, namespace)
// for a TTL. Entries are invalidated when the watcher sees a change in scope.
package topologycache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/metrics"
)

const defaultSize = 256

// Cache is a size-bounded TTL cache of topologies. Safe for concurrent use.
type Cache struct {
	ttl time.Duration
	lru *expirable.LRU[string, *models.Topology]
}

// New returns a cache holding up to size entries for ttl. ttl <= 0 disables
// caching: every Get misses.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	c := &Cache{ttl: ttl}
	if ttl > 0 {
		c.lru = expirable.NewLRU[string, *models.Topology](size, nil, ttl)
	}
	return c
}

func key(kubeContext, namespace string) string {
	return kubeContext + "|" + namespace
}

// Get returns the cached topology for the scope. Records hit/miss.
func (c *Cache) Get(kubeContext, namespace string) (*models.Topology, bool) {
	if c.lru == nil {
		metrics.TopologyCacheMissesTotal.Inc()
		return nil, false
	}
	t, ok := c.lru.Get(key(kubeContext, namespace))
	if !ok || t == nil {
		metrics.TopologyCacheMissesTotal.Inc()
		return nil, false
	}
	metrics.TopologyCacheHitsTotal.Inc()
	return t, true
}

// Set stores topology for the scope.
func (c *Cache) Set(kubeContext, namespace string, topology *models.Topology) {
	if c.lru == nil || topology == nil {
		return
	}
	c.lru.Add(key(kubeContext, namespace), topology)
}

// InvalidateNamespace drops the entry for (kubeContext, namespace).
func (c *Cache) InvalidateNamespace(kubeContext, namespace string) {
	if c.lru == nil {
		return
	}
	c.lru.Remove(key(kubeContext, namespace))
}

// InvalidateContext drops every entry of kubeContext.
func (c *Cache) InvalidateContext(kubeContext string) {
	if c.lru == nil {
		return
	}
	prefix := kubeContext + "|"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
