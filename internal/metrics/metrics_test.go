package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("text", OutcomeOK)
	m.ObserveRequest("text", OutcomeOK)
	m.ObserveRequest("url", OutcomeRateLimited)
	m.ObserveCache("hit")
	m.ObserveDenial("text")
	m.ObserveSearchGroup(model.GroupNews, model.GroupFailed, 2*time.Second)
	m.ObserveOracle("synthesize", "ok")
	m.ObserveStage("search", 300*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("text", OutcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("url", OutcomeRateLimited)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimitDenials.WithLabelValues("text")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SearchGroups.WithLabelValues("news", "failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OracleCalls.WithLabelValues("synthesize", "ok")), 0)
}

func TestTrackInFlight(t *testing.T) {
	m := New(nil)

	done := m.TrackInFlight()
	assert.InDelta(t, 1, testutil.ToFloat64(m.InFlight), 0)
	done()
	assert.InDelta(t, 0, testutil.ToFloat64(m.InFlight), 0)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRequest("text", OutcomeOK)
		m.ObserveStage("search", time.Second)
		m.ObserveCache("miss")
		m.ObserveDenial("text")
		m.ObserveSearchGroup(model.GroupOfficial, model.GroupOK, time.Second)
		m.ObserveOracle("extract", "error")
		m.TrackInFlight()()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("text", OutcomeCached)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `credence_requests_total{kind="text",outcome="cached"} 1`))
}
