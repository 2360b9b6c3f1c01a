package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Messages.WithLabelValues("Project", OutcomeInserted).Inc()
	m.Messages.WithLabelValues("Project", OutcomeInserted).Inc()
	m.Quarantined.WithLabelValues("unknown_object_type").Inc()
	m.Retries.Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues("Project", OutcomeInserted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Quarantined.WithLabelValues("unknown_object_type")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Retries))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Retries.Inc()
	m.Processing.Observe(0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "salesconsumer_retries_total 1")
	assert.Contains(t, string(body), "salesconsumer_processing_seconds_count 1")
	assert.Contains(t, string(body), "go_goroutines")
}
