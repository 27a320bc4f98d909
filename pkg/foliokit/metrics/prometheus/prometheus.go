package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/foliokit/foliokit/pkg/foliokit"
)

// Metrics implements foliokit.Metrics using Prometheus.
type Metrics struct {
	slotConsumptionTotal   *prometheus.CounterVec
	slotReleasesTotal      *prometheus.CounterVec
	gateCheckDuration      *prometheus.HistogramVec
	creditApplicationTotal *prometheus.CounterVec
	creditsGranted         *prometheus.CounterVec
	storageOpsDuration     *prometheus.HistogramVec
	storageOpsErrors       *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		slotConsumptionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_consumption_total",
			Help:      "Total number of slot reservation attempts.",
		}, []string{"resource", "success"}),

		slotReleasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_releases_total",
			Help:      "Total number of released slots.",
		}, []string{"resource"}),

		gateCheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_check_duration_seconds",
			Help:      "Latency of usage-gate checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),

		creditApplicationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_application_total",
			Help:      "Total number of purchase crediting attempts.",
		}, []string{"sku", "applied"}),

		creditsGranted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_granted_total",
			Help:      "Total credits granted through purchases.",
		}, []string{"sku"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordSlotConsumption(resource foliokit.Resource, success bool) {
	m.slotConsumptionTotal.WithLabelValues(string(resource), strconv.FormatBool(success)).Inc()
}

func (m *Metrics) RecordSlotRelease(resource foliokit.Resource) {
	m.slotReleasesTotal.WithLabelValues(string(resource)).Inc()
}

func (m *Metrics) RecordGateCheck(resource foliokit.Resource, duration time.Duration) {
	m.gateCheckDuration.WithLabelValues(string(resource)).Observe(duration.Seconds())
}

func (m *Metrics) RecordCreditApplication(sku foliokit.SKU, credits int, applied bool) {
	m.creditApplicationTotal.WithLabelValues(string(sku), strconv.FormatBool(applied)).Inc()
	if applied {
		m.creditsGranted.WithLabelValues(string(sku)).Add(float64(credits))
	}
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}
