package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/backstage/services/procurement/config"
	"example.com/backstage/services/procurement/internal/api/middleware"
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/notify"
	"example.com/backstage/services/procurement/internal/services"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestServerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewMetrics()
	svc := services.NewProcurementService(nil, nil, nil, nil, services.WithMetrics(m))
	server := NewServer(config.ServerConfig{Address: ":0", CorsEnabled: true, CorsOrigins: []string{"*"}}, svc, notify.NewHub(nil), m, tracing.Disabled())

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requirements/required", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bucket":"required","suppliers":[]}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDKey))

	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// metrics are opt-in
	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
