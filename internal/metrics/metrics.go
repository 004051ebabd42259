package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Overlay engine metrics
var (
	// SelectionChangesTotal counts completed selection installs
	SelectionChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overlay_selection_changes_total",
			Help: "Total overlay selection changes applied",
		},
	)

	// SelectionResetsTotal counts remove-selection calls by whether they reset to default
	SelectionResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_selection_resets_total",
			Help: "Total overlay removals by reset mode",
		},
		[]string{"reset"},
	)

	// SourcesProvisionedTotal counts add-source calls issued to a backend
	SourcesProvisionedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "overlay_sources_provisioned_total",
			Help: "Total map sources added by the provisioner",
		},
	)

	// BackendErrorsTotal counts rejected backend calls by operation
	BackendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_backend_errors_total",
			Help: "Total map backend calls that returned an error, by operation",
		},
		[]string{"operation"},
	)

	// MapsMounted tracks currently mounted map instances
	MapsMounted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlay_maps_mounted",
			Help: "Number of mounted map instances",
		},
	)
)

// Area summary metrics
var (
	// SummaryFetchTotal counts chart-data fetches by outcome (ok, error, stale)
	SummaryFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "areasummary_fetch_total",
			Help: "Total area summary fetches by outcome",
		},
		[]string{"outcome"},
	)

	// SummaryFetchDuration tracks chart-data fetch latency in seconds
	SummaryFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "areasummary_fetch_duration_seconds",
			Help:    "Area summary fetch duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)
