// Package metrics exports cache statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisalay/loading-cache/stats"
)

// StatsSource is what the collector reads on every scrape.
// *cache.LoadingCache satisfies it.
type StatsSource interface {
	Stats() stats.Snapshot
	Len() int
}

/*
Collector renders a cache's statistics snapshot as Prometheus metrics.

The cache already keeps monotonic counters, so the collector does not
mirror them into prometheus.Counter values. It takes one snapshot per scrape
and emits constant metrics from it.
*/
type Collector struct {
	src StatsSource

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	loadSuccess *prometheus.Desc
	loadFailure *prometheus.Desc
	loadSeconds *prometheus.Desc
	evictions   *prometheus.Desc
	entries     *prometheus.Desc
}

// NewCollector creates a collector for src. Every metric carries a
// "cache" label set to cacheName.
func NewCollector(namespace, cacheName string, src StatsSource) *Collector {
	labels := prometheus.Labels{"cache": cacheName}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, labels)
	}

	return &Collector{
		src:         src,
		hits:        desc("hits_total", "Total number of lookups that found a live entry"),
		misses:      desc("misses_total", "Total number of lookups that found no live entry"),
		loadSuccess: desc("load_success_total", "Total number of keys loaded successfully"),
		loadFailure: desc("load_failure_total", "Total number of keys that failed to load"),
		loadSeconds: desc("load_seconds_total", "Total time spent in loaders in seconds"),
		evictions:   desc("evictions_total", "Total number of entries removed for size or expiry"),
		entries:     desc("entries", "Number of entries currently stored"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.loadSuccess
	ch <- c.loadFailure
	ch <- c.loadSeconds
	ch <- c.evictions
	ch <- c.entries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.HitCount))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.MissCount))
	ch <- prometheus.MustNewConstMetric(c.loadSuccess, prometheus.CounterValue, float64(s.LoadSuccessCount))
	ch <- prometheus.MustNewConstMetric(c.loadFailure, prometheus.CounterValue, float64(s.LoadFailureCount))
	ch <- prometheus.MustNewConstMetric(c.loadSeconds, prometheus.CounterValue, s.TotalLoadTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.EvictionCount))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(c.src.Len()))
}
