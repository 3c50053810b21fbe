// Package metrics holds the Prometheus collectors shared across audit runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	PagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_pages_fetched_total",
			Help: "Total pages fetched, labeled by HTTP status class (2xx, 3xx, 4xx, 5xx).",
		},
		[]string{"status_class"},
	)
	FetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siteaudit_fetch_errors_total",
			Help: "Total fetches that failed at the network level after all retries.",
		},
	)
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "siteaudit_fetch_duration_seconds",
			Help:    "Wall time of page fetches including redirects.",
			Buckets: prometheus.DefBuckets,
		},
	)
	RobotsDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siteaudit_robots_denied_total",
			Help: "URLs skipped because robots.txt disallows them.",
		},
	)
	PagesAnalyzed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "siteaudit_pages_analyzed_total",
			Help: "Pages that went through the SEO analyzer.",
		},
	)
	AuditsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "siteaudit_audits_active",
			Help: "Audit runs currently in progress.",
		},
	)
	AuditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "siteaudit_audits_total",
			Help: "Finished audit runs, labeled by terminal job status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(PagesFetched)
	prometheus.MustRegister(FetchErrors)
	prometheus.MustRegister(FetchDuration)
	prometheus.MustRegister(RobotsDenied)
	prometheus.MustRegister(PagesAnalyzed)
	prometheus.MustRegister(AuditsActive)
	prometheus.MustRegister(AuditsTotal)
}

// StatusClass converts an HTTP status code to its label value for
// PagesFetched ("2xx", "3xx", "4xx", "5xx" or "other").
func StatusClass(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "other"
}

// Expose serves the /metrics endpoint on addr. It blocks, so run it in a
// goroutine; the process does not depend on it shutting down cleanly.
func Expose(addr string, log *logrus.Entry) {
	log.WithField("address", addr).Info("Exposing Prometheus metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server stopped")
	}
}
