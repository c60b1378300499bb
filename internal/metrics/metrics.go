// Package metrics exposes poll-loop counters over a dedicated prometheus
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch error kinds used as the label on FetchErrors.
const (
	FetchKindTopology    = "topology"
	FetchKindLocations   = "locations"
	FetchKindPredictions = "predictions"
)

type Collector struct {
	reg *prometheus.Registry

	Polls     prometheus.Counter
	PollErrs  prometheus.Counter
	LastPoll  prometheus.Gauge
	PollTicks prometheus.Histogram

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	FetchErrors *prometheus.CounterVec // kind label: topology|locations|predictions

	TripsJoined prometheus.Counter
	JoinMisses  prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmon_polls_total",
			Help: "Total route poll cycles attempted.",
		}),
		PollErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmon_poll_errors_total",
			Help: "Total route poll cycles that failed outright.",
		}),
		LastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busmon_last_poll_epoch_seconds",
			Help: "Epoch time of the most recent completed poll cycle.",
		}),
		PollTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "busmon_poll_duration_seconds",
			Help:    "Duration of a full route poll cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmon_topology_cache_hits_total",
			Help: "Topology resolutions served from the same-day cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmon_topology_cache_misses_total",
			Help: "Topology resolutions that required an upstream fetch.",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busmon_fetch_errors_total",
			Help: "Upstream fetch failures by kind.",
		}, []string{"kind"}),
		TripsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmon_trips_joined_total",
			Help: "Trip records emitted across all poll cycles.",
		}),
		JoinMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busmon_join_misses_total",
			Help: "Trip records emitted with sentinel location fields.",
		}),
	}

	reg.MustRegister(
		c.Polls, c.PollErrs, c.LastPoll, c.PollTicks,
		c.CacheHits, c.CacheMisses,
		c.FetchErrors,
		c.TripsJoined, c.JoinMisses,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// TopologyCacheHit satisfies the topology resolver's metrics hook.
func (c *Collector) TopologyCacheHit() { c.CacheHits.Inc() }

// TopologyCacheMiss satisfies the topology resolver's metrics hook.
func (c *Collector) TopologyCacheMiss() { c.CacheMisses.Inc() }

// ObservePoll records one completed poll cycle.
func (c *Collector) ObservePoll(d time.Duration, completedAt time.Time) {
	c.Polls.Inc()
	c.PollTicks.Observe(d.Seconds())
	c.LastPoll.Set(float64(completedAt.Unix()))
}

// PollErrorInc counts a poll cycle that failed outright.
func (c *Collector) PollErrorInc() { c.PollErrs.Inc() }

// FetchErrorInc counts an upstream fetch failure of the given kind.
func (c *Collector) FetchErrorInc(kind string) { c.FetchErrors.WithLabelValues(kind).Inc() }

// TripsJoinedAdd counts emitted trip records.
func (c *Collector) TripsJoinedAdd(n int) { c.TripsJoined.Add(float64(n)) }

// JoinMissInc counts a trip emitted with sentinel location fields.
func (c *Collector) JoinMissInc() { c.JoinMisses.Inc() }
