package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the engine does, labeled by component and outcome.
type Metrics struct {
	operationsTotal  *prometheus.CounterVec
	bytesDownloaded  prometheus.Counter
	activeOperations prometheus.Gauge
	verifications    *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "provision",
			Name:      "operations_total",
			Help:      "Install/repair/remove operations by kind and outcome",
		}, []string{"kind", "outcome"}),
		bytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "provision",
			Name:      "bytes_downloaded_total",
			Help:      "Artifact bytes fetched from remote sources",
		}),
		activeOperations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "provision",
			Name:      "active_operations",
			Help:      "Operations currently holding a component slot",
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "provision",
			Name:      "verifications_total",
			Help:      "Integrity checks by result",
		}, []string{"result"}),
	}
}

func (this *Metrics) OperationStarted() {
	this.activeOperations.Inc()
}

func (this *Metrics) OperationFinished(kind, outcome string) {
	this.activeOperations.Dec()
	this.operationsTotal.WithLabelValues(kind, outcome).Inc()
}

func (this *Metrics) BytesDownloaded(count int64) {
	if count > 0 {
		this.bytesDownloaded.Add(float64(count))
	}
}

func (this *Metrics) Verified(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	this.verifications.WithLabelValues(result).Inc()
}
