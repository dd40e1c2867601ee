package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCacheLookupAndInsert(t *testing.T) {
	c := NewPlanCache(0)
	_, ok := c.Lookup(7)
	assert.False(t, ok)

	first := &CachedPlan{Cost: 1, Created: time.Now()}
	assert.Same(t, first, c.Insert(7, first))

	// A racing insert loses and adopts the earlier plan.
	second := &CachedPlan{Cost: 2, Created: time.Now()}
	assert.Same(t, first, c.Insert(7, second))

	got, ok := c.Lookup(7)
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, c.Len())
}

func TestPlanCacheTTLExpiry(t *testing.T) {
	c := NewPlanCache(time.Second)

	fresh := &CachedPlan{Created: time.Now()}
	c.Insert(1, fresh)
	_, ok := c.Lookup(1)
	assert.True(t, ok)

	stale := &CachedPlan{Created: time.Now().Add(-2 * time.Second)}
	c.Insert(2, stale)
	_, ok = c.Lookup(2)
	assert.False(t, ok)
	// Expired entries are removed by the failed lookup itself.
	assert.Equal(t, 1, c.Len())
}

func TestPlanCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewPlanCache(0)
	c.Insert(1, &CachedPlan{Created: time.Now().Add(-24 * time.Hour)})
	_, ok := c.Lookup(1)
	assert.True(t, ok)
}

func TestPlanCacheClear(t *testing.T) {
	c := NewPlanCache(0)
	for h := uint64(0); h < 10; h++ {
		c.Insert(h, &CachedPlan{Created: time.Now()})
	}
	require.Equal(t, 10, c.Len())
	c.Clear()
	assert.Zero(t, c.Len())
	_, ok := c.Lookup(3)
	assert.False(t, ok)
}
