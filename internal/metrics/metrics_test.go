package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStep(t *testing.T) {
	m := New("v0", "abc")
	m.ObserveStep("topics", StatusOK, 2*time.Second)
	m.ObserveStep("topics", StatusSkipped, 0)
	m.ObserveStep("topics", StatusOK, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stepTotal.WithLabelValues("topics", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepTotal.WithLabelValues("topics", StatusSkipped)))

	m.ObserveRun("delivered", 30*time.Second)
	assert.Equal(t, 30.0, testutil.ToFloat64(m.budgetRemaining))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep("x", StatusOK, time.Second)
	m.ObserveRun("delivered", 0)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("v0", "abc")
	m.ObserveRun("skipped", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `marketdigest_runs_total{result="skipped"} 1`)
	assert.Contains(t, string(body), `marketdigest_service_info{commit="abc",version="v0"} 1`)
}
