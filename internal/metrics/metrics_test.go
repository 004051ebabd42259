package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		SelectionChangesTotal,
		SelectionResetsTotal,
		SourcesProvisionedTotal,
		BackendErrorsTotal,
		MapsMounted,
		SummaryFetchTotal,
		SummaryFetchDuration,
	}

	for _, c := range collectors {
		err := prometheus.DefaultRegisterer.Register(c)
		assert.Error(t, err, "collector should already be registered")
		_, already := err.(prometheus.AlreadyRegisteredError)
		assert.True(t, already)
	}
}

func TestCounterVecLabels(t *testing.T) {
	before := testutil.ToFloat64(BackendErrorsTotal.WithLabelValues("add_layer"))
	BackendErrorsTotal.WithLabelValues("add_layer").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(BackendErrorsTotal.WithLabelValues("add_layer")))
}
