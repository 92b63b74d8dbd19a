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

func TestManagersUseIndependentRegistries(t *testing.T) {
	a := NewManager()
	b := NewManager()

	a.GetPrometheusMetrics().RecordDisposal("success", 10*time.Millisecond)
	a.GetPrometheusMetrics().RecordDisposalAmounts(3_000_000, 3, 30)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.GetPrometheusMetrics().DisposalsTotal.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GetPrometheusMetrics().DisposalsTotal.WithLabelValues("success")))
	assert.Equal(t, 3_000_000.0, testutil.ToFloat64(a.GetPrometheusMetrics().TokensBurnedTotal))
	assert.Equal(t, 30.0, testutil.ToFloat64(a.GetPrometheusMetrics().ExperienceGrantedTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewManager()
	m.GetPrometheusMetrics().RecordCompensation("revert_burn", "success")
	m.GetPrometheusMetrics().UpdateComponentHealth("storage", true)
	m.UpdateSystemMetrics()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `recycle_compensations_total{status="success",step="revert_burn"} 1`)
	assert.Contains(t, string(body), `recycle_component_health{component="storage"} 1`)
	assert.Contains(t, string(body), "recycle_goroutines")
	assert.Contains(t, string(body), "go_goroutines")
}
