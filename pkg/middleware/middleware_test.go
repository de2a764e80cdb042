package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/andydunstall/swim/pkg/log"
)

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	metrics := NewMetrics("admin")
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	router := gin.New()
	router.Use(metrics.Handler())
	router.GET("/members/:addr", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/members/a", "/members/b", "/unknown"} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, r)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		metrics.RequestsTotal.WithLabelValues("/members/:addr", "200", "GET"),
	))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.RequestsTotal.WithLabelValues("unknown", "404", "GET"),
	))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RequestsInFlight))
}

func TestLogger(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(NewLogger(log.NewNopLogger()))
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
