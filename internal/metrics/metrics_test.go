package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSearch("qa", 10*time.Millisecond, nil)
	m.ObserveSearch("qa", 10*time.Millisecond, errors.New("boom"))
	m.ObserveBuild("law", nil)
	m.SetIndexUnits("law", 42)
	m.CacheResult("hit")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchTotal.WithLabelValues("qa", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchTotal.WithLabelValues("qa", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("law", "ok")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.IndexUnits.WithLabelValues("law")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequestTotal.WithLabelValues("hit")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch("qa", time.Second, nil)
		m.ObserveRetrieve(time.Second)
		m.ObserveBuild("qa", nil)
		m.SetIndexUnits("qa", 1)
		m.CacheResult("miss")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRetrieve(time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "eurorag_retrieve_duration_seconds_count 1"))
}
