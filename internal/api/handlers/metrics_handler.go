package handlers

import (
	"net/http"
	"runtime"

	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/gin-gonic/gin"
)

// MetricsHandler serves the operational view of the requirement engine
type MetricsHandler struct {
	metrics *metrics.Metrics
	tracer  tracing.Tracer
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics *metrics.Metrics, tracer tracing.Tracer) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		tracer:  tracer,
	}
}

// ViewStats describes the requirement view as of the last refresh or patch.
type ViewStats struct {
	RequiredEntries    int64 `json:"required_entries"`
	OrderedEntries     int64 `json:"ordered_entries"`
	IdentityMismatches int64 `json:"identity_mismatches"`
	OrderChangesSeen   int64 `json:"order_changes_seen"`
}

// OperationStats joins the timer and outcome counts of one operation.
type OperationStats struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	ErrorRate     float64 `json:"error_rate"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// MetricsResponse is the body of GET /metrics.
type MetricsResponse struct {
	UptimeSeconds    int64                     `json:"uptime_seconds"`
	Goroutines       int64                     `json:"goroutines"`
	WebsocketClients int64                     `json:"websocket_clients"`
	View             ViewStats                 `json:"view"`
	Operations       map[string]OperationStats `json:"operations"`
	Health           map[string]bool           `json:"health"`
}

// operations maps response keys to the metric names tracked for them.
var operations = map[string]string{
	"refresh":         metrics.Refreshes,
	"transition":      metrics.Transitions,
	"bulk_transition": metrics.BulkTransitions,
	"expense_write":   metrics.ExpenseWrites,
	"event_publish":   metrics.EventsPublished,
	"snapshot_index":  metrics.SnapshotsIndexed,
}

// HandleGetMetrics reports view sizes, identity mismatches and per-operation timings
func (h *MetricsHandler) HandleGetMetrics(c *gin.Context) {
	txn := h.tracer.StartTransaction("get-metrics")
	defer h.tracer.EndTransaction(txn)

	c.JSON(http.StatusOK, h.snapshot())
}

func (h *MetricsHandler) snapshot() MetricsResponse {
	counters := h.metrics.GetCounters()
	gauges := h.metrics.GetGauges()
	timers := h.metrics.GetTimers()
	rates := h.metrics.GetErrorRates()

	ops := make(map[string]OperationStats, len(operations))
	for key, name := range operations {
		t, timed := timers[name]
		r, rated := rates[name]
		if !timed && !rated {
			continue
		}
		ops[key] = OperationStats{
			Count:         t.Count,
			Errors:        r.Errors,
			ErrorRate:     r.ErrorRate,
			AverageTimeMs: t.AverageTimeMs,
			MaxTimeMs:     t.MaxTimeMs,
		}
	}

	return MetricsResponse{
		UptimeSeconds:    h.metrics.GetUptimeSeconds(),
		Goroutines:       int64(runtime.NumGoroutine()),
		WebsocketClients: gauges[metrics.WebsocketClients],
		View: ViewStats{
			RequiredEntries:    gauges[metrics.RequiredEntries],
			OrderedEntries:     gauges[metrics.OrderedEntries],
			IdentityMismatches: counters[metrics.IdentityMismatch],
			OrderChangesSeen:   counters[metrics.OrderChangesSeen],
		},
		Operations: ops,
		Health:     h.metrics.GetHealthChecks(),
	}
}

// HandleGetHealthCheck reports 503 when any registered component is unhealthy
func (h *MetricsHandler) HandleGetHealthCheck(c *gin.Context) {
	checks := h.metrics.GetHealthChecks()

	status := http.StatusOK
	for _, ok := range checks {
		if !ok {
			status = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(status, gin.H{
		"status":  status == http.StatusOK,
		"details": checks,
	})
}

// RegisterRoutes registers the handler's routes
func (h *MetricsHandler) RegisterRoutes(router gin.IRouter, metricsEnabled bool) {
	if metricsEnabled {
		router.GET("/metrics", h.HandleGetMetrics)
	}
	router.GET("/health", h.HandleGetHealthCheck)
}
