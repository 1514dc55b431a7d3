package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
)

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveFetch("example.com", "ok", time.Second)
		m.ObserveRobots("allowed")
		m.ObserveScan("seed", "completed", 3)
		m.ObserveAsset("scanned")
		m.ObserveLLM("resolve", "ok")
		m.ObserveGrounding("render", "")
		m.ObserveVisualAids(2)
	})
}

func TestObserveScan(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveScan("openstax", "completed", 5)
	m.ObserveScan("openstax", "completed", 2)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ScansTotal.WithLabelValues("openstax", "completed")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.NodesMapped), 0)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/registry/sources/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/registry/sources/abc", http.NoBody))

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/registry/sources/:id", "404"))
	assert.InDelta(t, 1, got, 0)
}
