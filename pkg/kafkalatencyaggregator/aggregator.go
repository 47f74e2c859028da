package kafkalatencyaggregator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/brayniac/histogram"
)

// AggregatorConfig holds configuration for the aggregator.
type AggregatorConfig struct {
	ConsumerConfig *ConsumerConfig
	Histogram      histogram.Config
	Percentiles    []float64
	ReportInterval time.Duration
}

// Validate checks if the aggregator configuration is valid.
func (a *AggregatorConfig) Validate() error {
	if a.ConsumerConfig == nil {
		return fmt.Errorf("consumer config cannot be nil")
	}
	if err := a.ConsumerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid consumer config: %w", err)
	}
	if len(a.Percentiles) == 0 {
		return fmt.Errorf("percentiles cannot be empty")
	}
	for _, p := range a.Percentiles {
		if p < 0.0 || p > 100.0 {
			return fmt.Errorf("percentile out of range: %v", p)
		}
	}
	if a.ReportInterval <= 0 {
		return fmt.Errorf("report interval must be positive")
	}
	return nil
}

// ParsePercentiles parses a comma-separated list of percentiles,
// e.g. "50,90,99,99.9".
func ParsePercentiles(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		p, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percentile %q: %w", trimmed, err)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no percentiles given")
	}
	return out, nil
}

// Aggregator consumes latency samples from Kafka, maintains one histogram
// per partition, and periodically merges them into a combined report.
type Aggregator struct {
	cfg      *AggregatorConfig
	consumer *Consumer
	metrics  *Metrics
	logger   log.Logger

	partitions map[int32]*histogram.Histogram
	combined   *histogram.Histogram
	lastReport time.Time
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(cfg *AggregatorConfig, metrics *Metrics, logger log.Logger, reg prometheus.Registerer) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Validating the histogram geometry up front means per-partition
	// construction later cannot fail.
	combined, err := histogram.New(cfg.Histogram)
	if err != nil {
		return nil, fmt.Errorf("invalid histogram config: %w", err)
	}

	consumer, err := NewConsumer(cfg.ConsumerConfig, reg)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	return &Aggregator{
		cfg:        cfg,
		consumer:   consumer,
		metrics:    metrics,
		logger:     logger,
		partitions: make(map[int32]*histogram.Histogram),
		combined:   combined,
		lastReport: time.Now(),
	}, nil
}

// Run starts the aggregator processing loop.
func (a *Aggregator) Run(ctx context.Context) error {
	level.Info(a.logger).Log("msg", "starting aggregator",
		"report_interval", a.cfg.ReportInterval,
		"histogram_buckets", a.combined.Buckets(),
		"histogram_memory_bytes", a.combined.MemoryUsed())

	for {
		select {
		case <-ctx.Done():
			level.Info(a.logger).Log("msg", "shutting down aggregator")
			a.publishReport()
			return ctx.Err()
		default:
		}

		fetches := a.consumer.Poll(ctx)
		if fetches.IsClientClosed() {
			return fmt.Errorf("kafka client closed")
		}

		if err := a.processFetches(ctx, fetches); err != nil {
			return fmt.Errorf("process fetches: %w", err)
		}

		if time.Since(a.lastReport) >= a.cfg.ReportInterval {
			a.publishReport()
		}
	}
}

func (a *Aggregator) processFetches(ctx context.Context, fetches kgo.Fetches) error {
	if fetches.Empty() {
		return nil
	}

	for iter := fetches.RecordIter(); !iter.Done(); {
		rec := iter.Next()
		a.metrics.KafkaOffset.WithLabelValues(strconv.Itoa(int(rec.Partition))).Set(float64(rec.Offset))
		a.observe(rec.Partition, rec.Value)
	}

	// Commit only after every sample in the fetch is in a histogram.
	if err := a.consumer.CommitOffsets(ctx); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}

	return nil
}

// observe records every sample in a record payload into the partition's
// histogram.
func (a *Aggregator) observe(partition int32, payload []byte) {
	h, ok := a.partitions[partition]
	if !ok {
		// Geometry was validated in NewAggregator, so this cannot fail.
		h, _ = histogram.New(a.cfg.Histogram)
		a.partitions[partition] = h
	}

	samples, invalid := DecodeSamples(payload)
	if invalid > 0 {
		a.metrics.SamplesInvalid.Add(float64(invalid))
		level.Warn(a.logger).Log("msg", "skipped malformed sample lines",
			"partition", partition, "count", invalid)
	}

	for _, v := range samples {
		small, large := h.MissedSmall(), h.MissedLarge()
		h.Increment(v)
		a.metrics.SamplesRead.Inc()
		if h.MissedSmall() > small {
			a.metrics.SamplesMissed.WithLabelValues("too_small").Inc()
		}
		if h.MissedLarge() > large {
			a.metrics.SamplesMissed.WithLabelValues("too_large").Inc()
		}
	}
}

// publishReport merges the per-partition histograms into the combined
// scratch histogram, logs the resulting report, and updates the percentile
// gauges.
func (a *Aggregator) publishReport() {
	a.lastReport = time.Now()

	a.combined.Reset()
	for _, h := range a.partitions {
		a.combined.Merge(h)
	}

	report := BuildReport(a.combined, a.cfg.Percentiles, len(a.partitions))
	// Merge moves bucket counts only; the missed counters live on the
	// per-partition histograms.
	for _, h := range a.partitions {
		report.MissedSmall += h.MissedSmall()
		report.MissedLarge += h.MissedLarge()
		report.MissedUnknown += h.MissedUnknown()
	}
	a.metrics.ReportsGenerated.Inc()
	for _, pv := range report.Percentiles {
		a.metrics.LatencyPercentile.WithLabelValues(formatQuantile(pv.Percentile)).Set(float64(pv.Value))
	}

	level.Info(a.logger).Log(append([]interface{}{"msg", "latency report"}, report.Keyvals()...)...)
}

// Close closes the aggregator and releases resources.
func (a *Aggregator) Close() {
	if a.consumer != nil {
		a.consumer.Close()
	}
}
