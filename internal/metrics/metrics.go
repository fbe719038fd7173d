// Package metrics provides Prometheus metrics for uploads and metadata refreshes.
//
// Metrics are optional: when no registry is supplied the gateway runs with a
// no-op implementation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayMetrics records upload and refresh activity
type GatewayMetrics interface {
	// ObserveUpload records a finished PUT
	ObserveUpload(status string, bytes int64)

	// RefreshQueued is called when a refresh starts waiting for the lock
	RefreshQueued()

	// RefreshStarted is called once the lock is held and the indexer is about to run
	RefreshStarted()

	// ObserveRefresh records a finished refresh
	ObserveRefresh(status string, duration time.Duration)
}

// NewGatewayMetrics returns a Prometheus-backed GatewayMetrics registered on
// reg, or a no-op implementation when reg is nil.
func NewGatewayMetrics(reg *prometheus.Registry) GatewayMetrics {
	if reg == nil {
		return NewNoopGatewayMetrics()
	}

	return &gatewayMetrics{
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmgate_uploads_total",
				Help: "Total number of artifact uploads by status",
			},
			[]string{"status"},
		),
		uploadBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "rpmgate_upload_bytes_total",
				Help: "Total bytes written by successful uploads",
			},
		),
		refreshesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmgate_refreshes_total",
				Help: "Total number of indexer runs by status",
			},
			[]string{"status"},
		),
		refreshDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "rpmgate_refresh_duration_seconds",
				Help: "Duration of indexer runs in seconds",
				Buckets: []float64{
					0.1,
					0.5,
					1,
					5,
					15,
					60,
					300,
					900,
				},
			},
		),
		refreshesWaiting: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "rpmgate_refreshes_waiting",
				Help: "Number of refresh requests waiting for the indexer lock",
			},
		),
		refreshRunning: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "rpmgate_refresh_running",
				Help: "1 while an indexer run is in progress",
			},
		),
	}
}

// Handler exposes reg in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type gatewayMetrics struct {
	uploadsTotal     *prometheus.CounterVec
	uploadBytes      prometheus.Counter
	refreshesTotal   *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
	refreshesWaiting prometheus.Gauge
	refreshRunning   prometheus.Gauge
}

func (m *gatewayMetrics) ObserveUpload(status string, bytes int64) {
	m.uploadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.uploadBytes.Add(float64(bytes))
	}
}

func (m *gatewayMetrics) RefreshQueued() {
	m.refreshesWaiting.Inc()
}

func (m *gatewayMetrics) RefreshStarted() {
	m.refreshesWaiting.Dec()
	m.refreshRunning.Set(1)
}

func (m *gatewayMetrics) ObserveRefresh(status string, duration time.Duration) {
	m.refreshRunning.Set(0)
	m.refreshesTotal.WithLabelValues(status).Inc()
	m.refreshDuration.Observe(duration.Seconds())
}

type noopGatewayMetrics struct{}

// NewNoopGatewayMetrics returns a GatewayMetrics that discards everything
func NewNoopGatewayMetrics() GatewayMetrics {
	return noopGatewayMetrics{}
}

func (noopGatewayMetrics) ObserveUpload(string, int64)          {}
func (noopGatewayMetrics) RefreshQueued()                       {}
func (noopGatewayMetrics) RefreshStarted()                      {}
func (noopGatewayMetrics) ObserveRefresh(string, time.Duration) {}
