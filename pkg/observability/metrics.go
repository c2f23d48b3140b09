// Package observability exposes the agent's Prometheus metrics. Counters are
// registered on the default registry at init; Serve publishes them when
// metrics are enabled in config.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_turns_total",
		Help: "Completed conversation turns by research effort tier.",
	}, []string{"effort"})

	researchIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cogito_research_iterations",
		Help:    "Planner iterations spent per turn.",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_queries_total",
		Help: "Executed research queries by source.",
	}, []string{"source"})

	duplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_duplicates_total",
		Help: "Deduplicated queries and results by kind.",
	}, []string{"kind"})
)

// RecordTurn counts one finished turn with the iterations it used.
func RecordTurn(effort string, iterations int) {
	turnsTotal.WithLabelValues(effort).Inc()
	researchIterations.Observe(float64(iterations))
}

// RecordQueries counts executed queries against one source.
func RecordQueries(source string, n int) {
	if n > 0 {
		queriesTotal.WithLabelValues(source).Add(float64(n))
	}
}

// RecordDuplicate counts one dedup hit. kind is "query" or "result".
func RecordDuplicate(kind string) {
	duplicatesTotal.WithLabelValues(kind).Inc()
}

// Serve publishes /metrics on the given port in a background goroutine.
// Serving errors are logged, not fatal.
func Serve(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}
