package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brayniac/histogram"
	"github.com/brayniac/histogram/pkg/kafkalatencyaggregator"
)

func runTestMode(cfg *kafkalatencyaggregator.ConsumerConfig, logger log.Logger) {
	level.Info(logger).Log("msg", "running in test mode", "brokers", fmt.Sprintf("%v", cfg.Brokers), "topic", cfg.Topic)

	consumer, err := kafkalatencyaggregator.NewConsumer(cfg, nil)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create consumer", "err", err)
		os.Exit(1)
	}
	defer consumer.Close()

	level.Info(logger).Log("msg", "connected to Kafka, polling for one record...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fetches := consumer.Poll(ctx)
	if fetches.IsClientClosed() {
		level.Error(logger).Log("msg", "kafka client closed")
		os.Exit(1)
	}
	if err := fetches.Err(); err != nil {
		level.Error(logger).Log("msg", "fetch error", "err", err)
		os.Exit(1)
	}
	if fetches.Empty() {
		level.Info(logger).Log("msg", "no records available (topic may be empty or at end)")
		level.Info(logger).Log("msg", "test successful: connected to Kafka successfully")
		return
	}

	iter := fetches.RecordIter()
	if iter.Done() {
		level.Info(logger).Log("msg", "no records in fetch")
		level.Info(logger).Log("msg", "test successful: connected to Kafka successfully")
		return
	}
	rec := iter.Next()

	level.Info(logger).Log(
		"msg", "successfully read record",
		"partition", rec.Partition,
		"offset", rec.Offset,
		"size_bytes", len(rec.Value),
	)

	samples, invalid := kafkalatencyaggregator.DecodeSamples(rec.Value)
	if len(samples) == 0 {
		level.Warn(logger).Log("msg", "record contained no parsable samples", "invalid_lines", invalid)
		level.Info(logger).Log("msg", "test successful: connected and read data, but format validation failed")
		os.Exit(1)
	}

	level.Info(logger).Log(
		"msg", "successfully decoded latency samples",
		"samples", len(samples),
		"invalid_lines", invalid,
		"first_sample_ns", samples[0],
	)
	level.Info(logger).Log("msg", "test successful: Kafka connectivity and data format validated")
}

func main() {
	var (
		kafkaBrokers       string
		kafkaTopic         string
		consumerGroup      string
		fromBeginning      bool
		percentiles        string
		reportInterval     time.Duration
		metricsPort        int
		testMode           bool
		kafkaUsername      string
		kafkaPassword      string
		kafkaSASLMechanism string
	)

	histogramCfg := &histogram.Config{}
	histogramCfg.RegisterFlagsAndApplyDefaults("histogram", flag.CommandLine)

	flag.StringVar(&kafkaBrokers, "kafka-brokers", "localhost:9092", "Comma-separated Kafka broker addresses")
	flag.StringVar(&kafkaTopic, "kafka-topic", "latency-samples", "Kafka topic to consume from")
	flag.StringVar(&consumerGroup, "consumer-group", "kafka-latency-aggregator", "Consumer group ID for offset tracking")
	flag.BoolVar(&fromBeginning, "from-beginning", false, "Start from earliest offset (ignores committed offset)")
	flag.StringVar(&percentiles, "percentiles", "50,90,99,99.9", "Comma-separated percentiles to report")
	flag.DurationVar(&reportInterval, "report-interval", 30*time.Second, "How often to merge partition histograms and report")
	flag.IntVar(&metricsPort, "metrics-port", 10001, "Port to expose Prometheus metrics")
	flag.BoolVar(&testMode, "test", false, "Test mode: connect to Kafka, read one record, and exit without aggregating")
	flag.StringVar(&kafkaUsername, "kafka-username", "", "Kafka SASL username (optional)")
	flag.StringVar(&kafkaPassword, "kafka-password", "", "Kafka SASL password (optional)")
	flag.StringVar(&kafkaSASLMechanism, "kafka-sasl-mechanism", "PLAIN", "Kafka SASL mechanism: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512")

	flag.Parse()

	// Setup logger
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)

	pcts, err := kafkalatencyaggregator.ParsePercentiles(percentiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid -percentiles: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	// Setup metrics
	reg := prometheus.NewRegistry()
	metrics := kafkalatencyaggregator.NewMetrics(reg)

	// Start metrics server
	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: mux,
	}

	go func() {
		level.Info(logger).Log("msg", "starting metrics server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Create consumer config
	consumerCfg := &kafkalatencyaggregator.ConsumerConfig{
		Topic:         kafkaTopic,
		ConsumerGroup: consumerGroup,
		FromBeginning: fromBeginning,
		SASLUsername:  kafkaUsername,
		SASLPassword:  kafkaPassword,
		SASLMechanism: kafkaSASLMechanism,
	}
	consumerCfg.SetBrokersFromString(kafkaBrokers)

	// Test mode: connect, read one record, and exit
	if testMode {
		runTestMode(consumerCfg, logger)
		return
	}

	cfg := &kafkalatencyaggregator.AggregatorConfig{
		ConsumerConfig: consumerCfg,
		Histogram:      *histogramCfg,
		Percentiles:    pcts,
		ReportInterval: reportInterval,
	}

	aggregator, err := kafkalatencyaggregator.NewAggregator(cfg, metrics, logger, reg)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create aggregator", "err", err)
		os.Exit(1)
	}
	defer aggregator.Close()

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		level.Info(logger).Log("msg", "received shutdown signal")
		cancel()
	}()

	level.Info(logger).Log(
		"msg", "starting kafka-latency-aggregator",
		"brokers", kafkaBrokers,
		"topic", kafkaTopic,
		"consumer_group", consumerGroup,
		"percentiles", percentiles,
		"report_interval", reportInterval,
	)

	if err := aggregator.Run(ctx); err != nil && err != context.Canceled {
		level.Error(logger).Log("msg", "aggregator failed", "err", err)
		os.Exit(1)
	}

	// Shutdown metrics server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "metrics server shutdown failed", "err", err)
	}

	level.Info(logger).Log("msg", "shutdown complete")
}
