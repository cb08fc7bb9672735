package monitoring

import (
	"net/http"
	"time"

	"github.com/mezonai/ockham/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	viewDuration      prometheus.Histogram
	currentView       prometheus.Gauge
	finalizedView     prometheus.Gauge
	notarizeQCCount   prometheus.Counter
	finalizeQCCount   prometheus.Counter
	dummyQCCount      prometheus.Counter
	equivocationCount prometheus.Counter
	peerCount         prometheus.Gauge
	panicCount        prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ockham_node_up_timestamp_unix_seconds",
			Help: "Unix timestamp the node process started",
		}),
		viewDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "ockham_view_duration_seconds",
			Help: "Wall-clock duration a view stayed current before advancing",
		}),
		currentView: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ockham_current_view",
			Help: "The pacemaker's current view",
		}),
		finalizedView: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ockham_finalized_view",
			Help: "The highest finalized view",
		}),
		notarizeQCCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ockham_notarize_qc_total",
			Help: "Total Notarize QCs formed, dummy and real",
		}),
		finalizeQCCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ockham_finalize_qc_total",
			Help: "Total Finalize QCs formed",
		}),
		dummyQCCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ockham_dummy_qc_total",
			Help: "Total Notarize QCs formed over the dummy block",
		}),
		equivocationCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ockham_equivocation_total",
			Help: "Total equivocating votes/blocks detected and stashed as evidence",
		}),
		peerCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ockham_peer_count",
			Help: "The total number of connected peers",
		}),
		panicCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ockham_panic_total",
			Help: "Total panics recovered from background goroutines",
		}),
	}
}

var nodeMetrics *nodePromMetrics

// InitMetrics initializes the metrics registry but does not expose it
// over HTTP yet.
func InitMetrics() {
	nodeMetrics = newNodePromMetrics()
	nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
}

// RegisterMetrics exposes the /metrics endpoint on mux.
func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func RecordViewDuration(d time.Duration) {
	nodeMetrics.viewDuration.Observe(d.Seconds())
}

func SetCurrentView(v uint64) {
	nodeMetrics.currentView.Set(float64(v))
}

func SetFinalizedView(v uint64) {
	nodeMetrics.finalizedView.Set(float64(v))
}

func IncreaseNotarizeQCCount() {
	nodeMetrics.notarizeQCCount.Inc()
}

func IncreaseFinalizeQCCount() {
	nodeMetrics.finalizeQCCount.Inc()
}

func IncreaseDummyQCCount() {
	nodeMetrics.dummyQCCount.Inc()
}

func IncreaseEquivocationCount() {
	nodeMetrics.equivocationCount.Inc()
}

func SetPeerCount(peers int) {
	nodeMetrics.peerCount.Set(float64(peers))
}

// IncreasePanicCount records a recovered panic from exception.SafeGo.
func IncreasePanicCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.panicCount.Inc()
}
