package query

import (
	"time"

	"github.com/orneryd/runegraph/pkg/concurrent"
	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/query/plan"
)

// CachedPlan is a compiled, shareable query plan. The AST storage travels
// with the tree because operators hold references into it.
type CachedPlan struct {
	Tree    plan.Operator
	Cost    float64
	Storage *frontend.AstStorage
	Symbols *frontend.SymbolTable
	Created time.Time
}

// PlanCache maps stripped-query hashes to compiled plans. Entries older
// than the TTL are treated as absent and removed on lookup.
type PlanCache struct {
	plans *concurrent.Map[uint64, *CachedPlan]
	ttl   time.Duration
}

// NewPlanCache returns an empty cache. A zero ttl disables expiry.
func NewPlanCache(ttl time.Duration) *PlanCache {
	return &PlanCache{plans: concurrent.NewMap[uint64, *CachedPlan](), ttl: ttl}
}

// Lookup returns the cached plan for hash, removing and missing any entry
// past its TTL.
func (c *PlanCache) Lookup(hash uint64) (*CachedPlan, bool) {
	acc := c.plans.Access()
	p, ok := acc.Find(hash)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(p.Created) >= c.ttl {
		acc.Remove(hash)
		return nil, false
	}
	return p, true
}

// Insert stores p under hash unless another plan got there first, and
// returns the plan that ended up cached. Racing inserts are tolerated;
// losers adopt the winner.
func (c *PlanCache) Insert(hash uint64, p *CachedPlan) *CachedPlan {
	winner, _ := c.plans.Access().Insert(hash, p)
	return winner
}

// Clear drops every cached plan by iterating and removing entries.
func (c *PlanCache) Clear() {
	acc := c.plans.Access()
	acc.Range(func(hash uint64, _ *CachedPlan) bool {
		acc.Remove(hash)
		return true
	})
}

// Len reports the number of cached plans.
func (c *PlanCache) Len() int {
	return c.plans.Access().Len()
}
