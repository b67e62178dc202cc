// Package metrics provides Prometheus metrics for ad scanning and collection.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScansTotal counts finished scans by status.
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adscanner_scans_total",
			Help: "Total number of page scans",
		},
		[]string{"status"},
	)

	// ScanDuration tracks how long a page scan takes.
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adscanner_scan_duration_seconds",
			Help:    "Page scan duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		},
	)

	// CandidatesTotal counts located ad candidates.
	CandidatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adscanner_candidates_total",
			Help: "Total ad candidates located",
		},
	)

	// InvalidSelectorsTotal counts selectors the document rejected.
	InvalidSelectorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adscanner_invalid_selectors_total",
			Help: "Total selectors skipped as invalid",
		},
	)

	// CapturesTotal counts capture requests by outcome.
	CapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adscanner_captures_total",
			Help: "Total viewport capture requests by outcome",
		},
		[]string{"outcome"},
	)

	// DispatchesTotal counts report deliveries by status.
	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adscanner_dispatches_total",
			Help: "Total ad report deliveries by status",
		},
		[]string{"status"},
	)

	// BrowserPoolSize shows the configured pool size.
	BrowserPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adscanner_browser_pool_size",
			Help: "Configured browser pool size",
		},
	)

	// BrowserPoolAvailable shows available browsers in the pool.
	BrowserPoolAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adscanner_browser_pool_available",
			Help: "Available browsers in pool",
		},
	)

	// BrowserPoolAcquired counts total browser acquisitions.
	BrowserPoolAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adscanner_browser_pool_acquired_total",
			Help: "Total browser acquisitions from pool",
		},
	)

	// BrowserPoolRecycled counts browser recycles.
	BrowserPoolRecycled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adscanner_browser_pool_recycled_total",
			Help: "Total browsers recycled",
		},
	)

	// UploadsTotal counts reports received by the collector.
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adscanner_collector_uploads_total",
			Help: "Total ad reports received by the collector",
		},
		[]string{"status", "screenshot"},
	)

	// HTTPRequestDuration tracks collector request duration by path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adscanner_http_request_duration_seconds",
			Help:    "Collector HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "status"},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adscanner_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adscanner_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adscanner_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		ScansTotal,
		ScanDuration,
		CandidatesTotal,
		InvalidSelectorsTotal,
		CapturesTotal,
		DispatchesTotal,
		BrowserPoolSize,
		BrowserPoolAvailable,
		BrowserPoolAcquired,
		BrowserPoolRecycled,
		UploadsTotal,
		HTTPRequestDuration,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector periodically updates memory metrics until stopCh closes.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordScan records a finished scan.
func RecordScan(status string, candidates, invalidSelectors int, duration time.Duration) {
	ScansTotal.WithLabelValues(status).Inc()
	ScanDuration.Observe(duration.Seconds())
	CandidatesTotal.Add(float64(candidates))
	InvalidSelectorsTotal.Add(float64(invalidSelectors))
}

// RecordCapture records a capture request outcome.
func RecordCapture(outcome string) {
	CapturesTotal.WithLabelValues(outcome).Inc()
}

// RecordDispatch records a report delivery.
func RecordDispatch(ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	DispatchesTotal.WithLabelValues(status).Inc()
}

// RecordUpload records a report received by the collector.
func RecordUpload(status string, screenshotSaved bool) {
	screenshot := "none"
	if screenshotSaved {
		screenshot = "saved"
	}
	UploadsTotal.WithLabelValues(status, screenshot).Inc()
}

// RecordHTTPRequest records a served collector request.
func RecordHTTPRequest(path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(path, status).Observe(duration.Seconds())
}

// UpdatePoolMetrics updates browser pool gauges.
func UpdatePoolMetrics(size, available int) {
	BrowserPoolSize.Set(float64(size))
	BrowserPoolAvailable.Set(float64(available))
}
