package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/parquet-go/parquet-go"

	"github.com/brayniac/histogram"
	"github.com/brayniac/histogram/pkg/kafkalatencyaggregator"
)

// sampleRow is the parquet row shape this tool replays: one latency
// measurement per row, in nanoseconds.
type sampleRow struct {
	DurationNs int64 `parquet:"duration_ns"`
}

type arrayFlags []string

func (a *arrayFlags) String() string {
	return strings.Join(*a, ",")
}

func (a *arrayFlags) Set(value string) error {
	*a = append(*a, value)
	return nil
}

func main() {
	var (
		dir         string
		files       arrayFlags
		percentiles string
		batchSize   int
	)

	histogramCfg := &histogram.Config{}
	histogramCfg.RegisterFlagsAndApplyDefaults("histogram", flag.CommandLine)

	flag.StringVar(&dir, "dir", "", "Directory scanned for *.parquet sample files")
	flag.Var(&files, "file", "Parquet sample file (repeatable)")
	flag.StringVar(&percentiles, "percentiles", "50,90,99,99.9", "Comma-separated percentiles to report")
	flag.IntVar(&batchSize, "batch-size", 4096, "Number of rows to read per batch")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if dir == "" && len(files) == 0 {
		fmt.Fprintf(os.Stderr, "error: either --dir or at least one --file must be specified\n")
		flag.Usage()
		os.Exit(1)
	}

	pcts, err := kafkalatencyaggregator.ParsePercentiles(percentiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid --percentiles: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	h, err := histogram.New(*histogramCfg)
	if err != nil {
		level.Error(logger).Log("msg", "invalid histogram config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		level.Info(logger).Log("msg", "received shutdown signal")
		cancel()
	}()

	if dir != "" {
		found, err := findParquetFiles(dir)
		if err != nil {
			level.Error(logger).Log("msg", "failed to scan directory", "dir", dir, "err", err)
			os.Exit(1)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		level.Warn(logger).Log("msg", "no parquet files found", "dir", dir)
		return
	}
	level.Info(logger).Log("msg", "replaying samples", "files", len(files),
		"histogram_buckets", h.Buckets(), "histogram_memory_bytes", h.MemoryUsed())

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		rows, negatives, err := replayFile(ctx, path, h, batchSize)
		if err != nil {
			level.Error(logger).Log("msg", "error replaying file", "file", path, "err", err)
			os.Exit(1)
		}
		level.Info(logger).Log("msg", "replayed file", "file", filepath.Base(path), "rows", rows, "negative_durations", negatives)
	}

	report := kafkalatencyaggregator.BuildReport(h, pcts, len(files))
	level.Info(logger).Log(append([]interface{}{"msg", "latency report"}, report.Keyvals()...)...)
	fmt.Println(report)
}

// findParquetFiles returns every *.parquet file directly under dir.
func findParquetFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// replayFile streams one parquet file into the histogram in batches.
// Negative durations cannot be latencies; they are skipped and counted.
func replayFile(ctx context.Context, path string, h *histogram.Histogram, batchSize int) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}

	pf, err := parquet.OpenFile(f, fi.Size(),
		parquet.SkipBloomFilters(true),
		parquet.SkipPageIndex(true),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("open parquet: %w", err)
	}

	r := parquet.NewGenericReader[sampleRow](pf)
	defer r.Close()

	rowBuf := make([]sampleRow, batchSize)
	rows, negatives := 0, 0

	for {
		if ctx.Err() != nil {
			return rows, negatives, ctx.Err()
		}

		n, err := r.Read(rowBuf)
		for i := 0; i < n; i++ {
			d := rowBuf[i].DurationNs
			if d < 0 {
				negatives++
				continue
			}
			h.Increment(uint64(d))
			rows++
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, negatives, fmt.Errorf("read rows: %w", err)
		}
	}

	return rows, negatives, nil
}
