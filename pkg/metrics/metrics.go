package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixivcrawl/pkg/logger"
)

const namespace = "pixivcrawl"

// Metrics holds the crawl collectors on a private registry. Every method
// is a no-op on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	artworks         *prometheus.CounterVec
	pages            *prometheus.CounterVec
	bytes            prometheus.Counter
	retries          *prometheus.CounterVec
	downloadDuration prometheus.Histogram
	queueDepth       prometheus.Gauge
	inFlight         prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		artworks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artworks_total",
				Help:      "Artworks finished, by outcome (complete, failed, skipped).",
			},
			[]string{"outcome"},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Page downloads, by status (downloaded, exists, failed, cancelled).",
			},
			[]string{"status"},
		),
		bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "Bytes written to disk.",
			},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retried operations, by operation (listing, resolve, download).",
			},
			[]string{"operation"},
		),
		downloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Duration of successful page downloads.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Download tasks waiting for a worker.",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "downloads_in_flight",
				Help:      "Downloads currently running.",
			},
		),
	}

	m.registry.MustRegister(
		m.artworks, m.pages, m.bytes, m.retries,
		m.downloadDuration, m.queueDepth, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ArtworkFinished(outcome string) {
	if m == nil {
		return
	}
	m.artworks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PageFinished(status string, bytes int64, took time.Duration) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.bytes.Add(float64(bytes))
		m.downloadDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) DownloadStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) DownloadDone() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.InfoWithFields("exposing Prometheus metrics", map[string]interface{}{"address": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
