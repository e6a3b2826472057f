package stats

import (
	"time"

	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coinchaind"

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// PrometheusObserver exports chain activity as prometheus metrics.
type PrometheusObserver struct {
	appends       *prometheus.CounterVec
	appendSeconds prometheus.Histogram
	reorgs        prometheus.Counter
	detached      prometheus.Counter
	attached      prometheus.Counter
	bestHeight    prometheus.Gauge
	claims        prometheus.Gauge
	purgedBlocks  prometheus.Counter
	stageSeconds  *prometheus.HistogramVec
}

// NewPrometheusObserver creates a PrometheusObserver whose metrics are
// registered on registerer.
func NewPrometheusObserver(registerer prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(registerer)
	return &PrometheusObserver{
		appends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "appends_total",
			Help:      "Number of appended blocks by outcome",
		}, []string{"outcome"}),
		appendSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "append_duration_seconds",
			Help:      "Duration of appending a block",
			Buckets:   durationBuckets,
		}),
		reorgs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "reorganizations_total",
			Help:      "Number of reorganizations that detached at least one block",
		}),
		detached: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "detached_blocks_total",
			Help:      "Number of blocks detached from the best chain",
		}),
		attached: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "attached_blocks_total",
			Help:      "Number of blocks attached to the best chain",
		}),
		bestHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "best_height",
			Help:      "Height of the best chain",
		}),
		claims: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "count",
			Help:      "Number of live claims",
		}),
		purgedBlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "purged_blocks_total",
			Help:      "Number of blocks whose bodies were purged",
		}),
		stageSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "stage_duration_seconds",
			Help:      "Duration of block processing stages",
			Buckets:   durationBuckets,
		}, []string{"stage"}),
	}
}

// AppendDone implements Observer.
func (o *PrometheusObserver) AppendDone(outcome ruleerrors.Outcome, duration time.Duration) {
	o.appends.WithLabelValues(outcome.String()).Inc()
	o.appendSeconds.Observe(duration.Seconds())
}

// Reorganized implements Observer.
func (o *PrometheusObserver) Reorganized(detached, attached int) {
	if detached > 0 {
		o.reorgs.Inc()
	}
	o.detached.Add(float64(detached))
	o.attached.Add(float64(attached))
}

// BestChanged implements Observer.
func (o *PrometheusObserver) BestChanged(height uint64) {
	o.bestHeight.Set(float64(height))
}

// ClaimsChanged implements Observer.
func (o *PrometheusObserver) ClaimsChanged(count int) {
	o.claims.Set(float64(count))
}

// Purged implements Observer.
func (o *PrometheusObserver) Purged(blocks int) {
	o.purgedBlocks.Add(float64(blocks))
}

// StageTimed implements Observer.
func (o *PrometheusObserver) StageTimed(stage Stage, duration time.Duration) {
	o.stageSeconds.WithLabelValues(string(stage)).Observe(duration.Seconds())
}
