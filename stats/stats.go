// Package stats keeps the counters that describe what a cache is doing.
package stats

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

/*
Counter accumulates cache statistics.

Every method is safe for concurrent use and lock-free. Counters saturate at
math.MaxUint64 instead of wrapping around.
*/
type Counter struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	loadSuccesses atomic.Uint64
	loadFailures  atomic.Uint64
	loadTime      atomic.Uint64 // nanoseconds
	evictions     atomic.Uint64
}

// RecordHits is called when lookups find a live value.
func (c *Counter) RecordHits(n int) { add(&c.hits, uint64(n)) }

// RecordMisses is called when lookups find nothing (or an expired value).
func (c *Counter) RecordMisses(n int) { add(&c.misses, uint64(n)) }

// RecordLoadSuccess is called once per successfully loaded key. The
// elapsed time is added to the total load time.
func (c *Counter) RecordLoadSuccess(n int, elapsed time.Duration) {
	add(&c.loadSuccesses, uint64(n))
	addDuration(&c.loadTime, elapsed)
}

// RecordLoadFailure is called once per key whose load failed.
func (c *Counter) RecordLoadFailure(n int, elapsed time.Duration) {
	add(&c.loadFailures, uint64(n))
	addDuration(&c.loadTime, elapsed)
}

// RecordEviction is called for every SIZE or EXPIRED removal.
func (c *Counter) RecordEviction() { add(&c.evictions, 1) }

// Snapshot returns the current values. Each counter is read atomically;
// the six reads are not taken at a single instant.
func (c *Counter) Snapshot() Snapshot {
	return Snapshot{
		HitCount:         c.hits.Load(),
		MissCount:        c.misses.Load(),
		LoadSuccessCount: c.loadSuccesses.Load(),
		LoadFailureCount: c.loadFailures.Load(),
		TotalLoadTime:    time.Duration(min(c.loadTime.Load(), math.MaxInt64)),
		EvictionCount:    c.evictions.Load(),
	}
}

func addDuration(c *atomic.Uint64, d time.Duration) {
	if d > 0 {
		add(c, uint64(d))
	}
}

func add(c *atomic.Uint64, n uint64) {
	if n == 0 {
		return
	}
	for {
		old := c.Load()
		if old == math.MaxUint64 {
			return
		}
		next := old + n
		if next < old {
			next = math.MaxUint64
		}
		if c.CompareAndSwap(old, next) {
			return
		}
	}
}

// Snapshot is an immutable view of a Counter.
type Snapshot struct {
	HitCount         uint64
	MissCount        uint64
	LoadSuccessCount uint64
	LoadFailureCount uint64
	TotalLoadTime    time.Duration
	EvictionCount    uint64
}

// RequestCount is hits plus misses.
func (s Snapshot) RequestCount() uint64 { return satAdd(s.HitCount, s.MissCount) }

// HitRate is the share of requests that were hits. It is 1 when there were
// no requests.
func (s Snapshot) HitRate() float64 {
	req := s.RequestCount()
	if req == 0 {
		return 1
	}
	return float64(s.HitCount) / float64(req)
}

// MissRate is the share of requests that were misses. It is 0 when there
// were no requests.
func (s Snapshot) MissRate() float64 {
	req := s.RequestCount()
	if req == 0 {
		return 0
	}
	return float64(s.MissCount) / float64(req)
}

// LoadCount is the number of keys the cache tried to load.
func (s Snapshot) LoadCount() uint64 { return satAdd(s.LoadSuccessCount, s.LoadFailureCount) }

// LoadFailureRate is the share of loads that failed.
func (s Snapshot) LoadFailureRate() float64 {
	loads := s.LoadCount()
	if loads == 0 {
		return 0
	}
	return float64(s.LoadFailureCount) / float64(loads)
}

// AverageLoadPenalty is the mean time spent per load.
func (s Snapshot) AverageLoadPenalty() time.Duration {
	loads := s.LoadCount()
	if loads == 0 {
		return 0
	}
	return time.Duration(uint64(s.TotalLoadTime) / loads)
}

// Minus returns the difference s - other, floored at zero per counter.
// Useful to get the activity between two snapshots.
func (s Snapshot) Minus(other Snapshot) Snapshot {
	return Snapshot{
		HitCount:         satSub(s.HitCount, other.HitCount),
		MissCount:        satSub(s.MissCount, other.MissCount),
		LoadSuccessCount: satSub(s.LoadSuccessCount, other.LoadSuccessCount),
		LoadFailureCount: satSub(s.LoadFailureCount, other.LoadFailureCount),
		TotalLoadTime:    max(s.TotalLoadTime-other.TotalLoadTime, 0),
		EvictionCount:    satSub(s.EvictionCount, other.EvictionCount),
	}
}

// Plus returns the saturated sum of two snapshots.
func (s Snapshot) Plus(other Snapshot) Snapshot {
	load := s.TotalLoadTime + other.TotalLoadTime
	if load < s.TotalLoadTime {
		load = math.MaxInt64
	}
	return Snapshot{
		HitCount:         satAdd(s.HitCount, other.HitCount),
		MissCount:        satAdd(s.MissCount, other.MissCount),
		LoadSuccessCount: satAdd(s.LoadSuccessCount, other.LoadSuccessCount),
		LoadFailureCount: satAdd(s.LoadFailureCount, other.LoadFailureCount),
		TotalLoadTime:    load,
		EvictionCount:    satAdd(s.EvictionCount, other.EvictionCount),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"Stats{hitCount=%d, missCount=%d, loadSuccessCount=%d, loadFailureCount=%d, totalLoadTime=%s, evictionCount=%d}",
		s.HitCount, s.MissCount, s.LoadSuccessCount, s.LoadFailureCount, s.TotalLoadTime, s.EvictionCount,
	)
}

func satAdd(a, b uint64) uint64 {
	if a+b < a {
		return math.MaxUint64
	}
	return a + b
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
