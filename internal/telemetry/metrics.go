// Package telemetry exports tracker state to the outside world: Prometheus
// counters and device state over HTTP, device snapshots over MQTT.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blelocate"

// Metrics holds the tracker's Prometheus collectors. It implements
// bluetooth.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	adverts  *prometheus.CounterVec
	solves   *prometheus.CounterVec
	tracked  prometheus.Gauge
	scanners *prometheus.GaugeVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		adverts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adverts_processed_total",
			Help:      "Advertisements processed, by whether they produced a distance.",
		}, []string{"distance"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_solves_total",
			Help:      "Trilateration attempts by outcome.",
		}, []string{"outcome"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_tracked",
			Help:      "Devices currently held in the registry.",
		}),
		scanners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scanners",
			Help:      "Known scanners by receiver kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.adverts, m.solves, m.tracked, m.scanners)
	return m
}

func (m *Metrics) AdvertProcessed(withDistance bool) {
	m.adverts.WithLabelValues(strconv.FormatBool(withDistance)).Inc()
}

func (m *Metrics) PositionSolved(outcome string) {
	m.solves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DevicesTracked(n int) {
	m.tracked.Set(float64(n))
}

// ScannersSeen records how many local and remote scanners are known.
func (m *Metrics) ScannersSeen(local, remote int) {
	m.scanners.WithLabelValues("local").Set(float64(local))
	m.scanners.WithLabelValues("remote").Set(float64(remote))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
