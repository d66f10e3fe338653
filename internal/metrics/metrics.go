package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stepscan"

var (
	Scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Step range scans by path taken, fast resumes the cursor and recreate rewinds the reader.",
		},
		[]string{"path"},
	)
	Recreations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recreations_total",
		Help:      "Number of times a reader was rebuilt from its locator.",
	})
	RowsScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_scanned_total",
		Help:      "Rows whose step value was inspected.",
	})
	RowsReturned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_returned_total",
		Help:      "Rows included in scan results.",
	})
	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Time taken by a single step range scan.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})
	EncodedBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "encoded_bytes",
		Help:      "Size of IPC streams handed to callers.",
		Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 10),
	})
	OpenHandles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_handles",
		Help:      "Reader handles not yet released.",
	})
	OutstandingBuffers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outstanding_buffers",
		Help:      "Result buffers handed out and not yet released.",
	})
	RemoteReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_reads_total",
			Help:      "Block fetches issued against remote sources.",
		},
		[]string{"source"},
	)
	RemoteRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_retries_total",
		Help:      "Block fetches retried after a transient failure.",
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "block_cache_hits_total",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "block_cache_misses_total",
	})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Scans,
		Recreations,
		RowsScanned,
		RowsReturned,
		ScanDuration,
		EncodedBytes,
		OpenHandles,
		OutstandingBuffers,
		RemoteReads,
		RemoteRetries,
		CacheHits,
		CacheMisses,
	}
}

// Register adds all collectors to reg. Collectors that are already registered
// are ignored so that multiple engines in one process can share them.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
