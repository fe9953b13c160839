// Package metrics registers the Prometheus instruments exported by the
// fusion engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aegis_fusion"

// Metrics bundles every instrument so components receive one handle.
type Metrics struct {
	FusionRuns      prometheus.Counter
	FusedThreats    prometheus.Gauge
	ProximityAlerts prometheus.Counter
	UnitsAtRisk     prometheus.Gauge

	PictureBuildSeconds prometheus.Histogram
	AnalysisSeconds     prometheus.Histogram

	BroadcastEvents *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// New registers all instruments with reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FusionRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_runs_total",
			Help:      "Number of fusion pipeline executions.",
		}),
		FusedThreats: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fused_threats",
			Help:      "Fused threats in the most recent tactical picture.",
		}),
		ProximityAlerts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proximity_alerts_total",
			Help:      "Proximity alerts raised across all scans.",
		}),
		UnitsAtRisk: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_at_risk",
			Help:      "Friendly units at risk in the most recent assessment.",
		}),
		PictureBuildSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "picture_build_seconds",
			Help:      "Latency of tactical picture assembly.",
			Buckets:   prometheus.DefBuckets,
		}),
		AnalysisSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_seconds",
			Help:      "Latency of AI analyzer calls.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BroadcastEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_events_total",
			Help:      "Events published to subscribers, by channel.",
		}, []string{"channel"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests served, by route and status class.",
		}, []string{"route", "status"}),
	}
}
