package tevdebug

import "sync/atomic"

// PipelineCounters track the agent capture pipeline.
type PipelineCounters struct {
	Enqueued    atomic.Uint64
	Dropped     atomic.Uint64
	Flushes     atomic.Uint64
	FlushErrors atomic.Uint64
}

// Values returns the current values of the counters.
func (pc *PipelineCounters) Values() (enqueued, dropped, flushes, flushErrors uint64) {
	return pc.Enqueued.Load(), pc.Dropped.Load(), pc.Flushes.Load(), pc.FlushErrors.Load()
}

// CacheCounters track hit rates on an interning cache.
type CacheCounters struct {
	Hits   atomic.Uint64
	Misses atomic.Uint64
}

// HitPercent returns the percent (0..100) of lookups served from the cache.
func (cc *CacheCounters) HitPercent() float64 {
	var (
		hits   = cc.Hits.Load()
		misses = cc.Misses.Load()
		total  = hits + misses
	)
	if total <= 0 {
		return 0.0
	}
	return 100 * float64(hits) / float64(total)
}

// Values returns the current values of the counters.
func (cc *CacheCounters) Values() (hits, misses uint64, hitPercent float64) {
	return cc.Hits.Load(), cc.Misses.Load(), cc.HitPercent()
}

var (
	// AgentCounters tracks events through the agent handoff and flush path.
	AgentCounters PipelineCounters

	// GroupKeyCounters tracks the facade's category group key cache.
	GroupKeyCounters CacheCounters
)
