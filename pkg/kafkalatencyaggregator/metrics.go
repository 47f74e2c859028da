package kafkalatencyaggregator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the aggregator.
type Metrics struct {
	SamplesRead       prometheus.Counter
	SamplesInvalid    prometheus.Counter
	SamplesMissed     *prometheus.CounterVec
	ReportsGenerated  prometheus.Counter
	KafkaOffset       *prometheus.GaugeVec
	LatencyPercentile *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	samplesRead := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latency_aggregator_samples_read_total",
		Help: "Total latency samples recorded",
	})

	samplesInvalid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latency_aggregator_samples_invalid_total",
		Help: "Total payload lines that failed to parse",
	})

	samplesMissed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "latency_aggregator_samples_missed_total",
		Help: "Total samples outside the histogram range",
	}, []string{"reason"})

	reportsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "latency_aggregator_reports_generated_total",
		Help: "Total latency reports generated",
	})

	kafkaOffset := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "latency_aggregator_kafka_offset",
		Help: "Current Kafka offset per partition",
	}, []string{"partition"})

	latencyPercentile := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "latency_aggregator_percentile_nanoseconds",
		Help: "Latency percentile estimates from the most recent report",
	}, []string{"quantile"})

	reg.MustRegister(samplesRead, samplesInvalid, samplesMissed, reportsGenerated, kafkaOffset, latencyPercentile)

	return &Metrics{
		SamplesRead:       samplesRead,
		SamplesInvalid:    samplesInvalid,
		SamplesMissed:     samplesMissed,
		ReportsGenerated:  reportsGenerated,
		KafkaOffset:       kafkaOffset,
		LatencyPercentile: latencyPercentile,
	}
}
