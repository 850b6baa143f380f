// Package metrics exposes Prometheus collectors for the harvesting pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal        *prometheus.CounterVec
	fetchRetriesTotal         *prometheus.CounterVec
	fetchDurationSeconds      *prometheus.HistogramVec
	episodesHarvestedTotal    *prometheus.CounterVec
	chaptersTranslatedTotal   *prometheus.CounterVec
	translationRetriesTotal   prometheus.Counter
	translationDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novelpress_fetch_requests_total",
				Help: "Total number of HTTP fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novelpress_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "novelpress_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		episodesHarvestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novelpress_episodes_harvested_total",
				Help: "Total number of episodes harvested, labeled by status.",
			},
			[]string{"status"},
		)

		chaptersTranslatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novelpress_chapters_translated_total",
				Help: "Total number of chapter translations, labeled by status.",
			},
			[]string{"status"},
		)

		translationRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "novelpress_translation_retries_total",
				Help: "Total number of translation call retries.",
			},
		)

		translationDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "novelpress_translation_duration_seconds",
				Help:    "Histogram of translation call latencies, labeled by provider.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records the outcome and latency of one fetch call.
func ObserveFetch(site, outcome string, duration time.Duration) {
	if fetchRequestsTotal == nil {
		return
	}
	sanitized := SanitizeSite(site)
	fetchRequestsTotal.WithLabelValues(sanitized, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// IncFetchRetry increments the retry counter for a site.
func IncFetchRetry(site string) {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveEpisode increments the harvested episode counter for the given status.
func ObserveEpisode(status string) {
	if episodesHarvestedTotal == nil {
		return
	}
	episodesHarvestedTotal.WithLabelValues(status).Inc()
}

// ObserveTranslation records the outcome and latency of one chapter translation.
func ObserveTranslation(provider, status string, duration time.Duration) {
	if chaptersTranslatedTotal == nil {
		return
	}
	chaptersTranslatedTotal.WithLabelValues(status).Inc()
	translationDurationSecond.WithLabelValues(provider).Observe(duration.Seconds())
}

// IncTranslationRetry increments the translation retry counter.
func IncTranslationRetry() {
	if translationRetriesTotal == nil {
		return
	}
	translationRetriesTotal.Inc()
}
