// Package metrics holds the Prometheus collectors for the ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for publishing, ranking and staking.
type Metrics struct {
	// Publish outcomes by result: "published", "invalid", "insufficient_stake", "error"
	AtomsPublished *prometheus.CounterVec

	RankingDuration   prometheus.Histogram
	RankingIterations prometheus.Histogram
	RankedNodes       prometheus.Gauge

	AggregateDuration prometheus.Histogram

	// Snapshot cache lookups by result: "hit", "miss", "error"
	CacheLookups *prometheus.CounterVec

	StakeMutations *prometheus.CounterVec
	TotalStaked    prometheus.Gauge
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AtomsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustgraph_atoms_published_total",
			Help: "Trust atom publish attempts by result",
		}, []string{"result"}),

		RankingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustgraph_ranking_duration_seconds",
			Help:    "Duration of a full ranking computation including graph build",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		RankingIterations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustgraph_ranking_iterations",
			Help:    "Power iterations run per ranking computation",
			Buckets: []float64{1, 5, 10, 20, 30, 50, 100},
		}),

		RankedNodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "trustgraph_ranked_nodes",
			Help: "Nodes in the most recent ranking computation",
		}),

		AggregateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustgraph_aggregate_duration_seconds",
			Help:    "Duration of aggregate reputation queries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustgraph_snapshot_cache_lookups_total",
			Help: "Ranking snapshot cache lookups by result",
		}, []string{"result"}),

		StakeMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustgraph_stake_mutations_total",
			Help: "Stake registry mutations by kind",
		}, []string{"kind"}),

		TotalStaked: f.NewGauge(prometheus.GaugeOpts{
			Name: "trustgraph_total_staked",
			Help: "Sum of all registered stakes",
		}),
	}
}

// IncPublished records a publish outcome.
func (m *Metrics) IncPublished(result string) {
	if m != nil {
		m.AtomsPublished.WithLabelValues(result).Inc()
	}
}

// ObserveRanking records one ranking computation.
func (m *Metrics) ObserveRanking(d time.Duration, iterations, nodes int) {
	if m != nil {
		m.RankingDuration.Observe(d.Seconds())
		m.RankingIterations.Observe(float64(iterations))
		m.RankedNodes.Set(float64(nodes))
	}
}

// ObserveAggregate records an aggregate query duration.
func (m *Metrics) ObserveAggregate(d time.Duration) {
	if m != nil {
		m.AggregateDuration.Observe(d.Seconds())
	}
}

// IncCacheLookup records a snapshot cache lookup.
func (m *Metrics) IncCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// IncStakeMutation records a register or slash and the new staked total.
func (m *Metrics) IncStakeMutation(kind string, totalStaked float64) {
	if m != nil {
		m.StakeMutations.WithLabelValues(kind).Inc()
		m.TotalStaked.Set(totalStaked)
	}
}
