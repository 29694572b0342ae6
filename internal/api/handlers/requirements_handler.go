package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/backstage/services/procurement/internal/export"
	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/procurement"
	"example.com/backstage/services/procurement/internal/services"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/gin-gonic/gin"
)

// RequirementService is the part of the procurement service the console uses
type RequirementService interface {
	Tree(b procurement.Bucket) []procurement.SupplierGroup
	Refresh(ctx context.Context) error
	Transition(ctx context.Context, entryID string, target procurement.Target) (services.TransitionResult, error)
	BulkTransition(ctx context.Context, key procurement.GroupKey, target procurement.Target) (services.BulkResult, error)
	ListTransitions(ctx context.Context, orderID string, limit int) ([]models.TransitionEvent, error)
}

var _ RequirementService = (*services.ProcurementService)(nil)

// RequirementsHandler handles the Required/Ordered console endpoints
type RequirementsHandler struct {
	service RequirementService
	tracer  tracing.Tracer
}

// NewRequirementsHandler creates a new requirements handler
func NewRequirementsHandler(service RequirementService, tracer tracing.Tracer) *RequirementsHandler {
	return &RequirementsHandler{
		service: service,
		tracer:  tracer,
	}
}

// TreeResponse is one bucket grouped by supplier and material code
type TreeResponse struct {
	Bucket    procurement.Bucket          `json:"bucket"`
	Suppliers []procurement.SupplierGroup `json:"suppliers"`
}

// TransitionRequest moves a single entry
type TransitionRequest struct {
	EntryID string `json:"entry_id" binding:"required"`
	Target  string `json:"target" binding:"required"`
}

// BulkTransitionRequest moves every entry of a group
type BulkTransitionRequest struct {
	Supplier string `json:"supplier" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Target   string `json:"target" binding:"required"`
}

// HandleGetRequired returns the Required tree
func (h *RequirementsHandler) HandleGetRequired(c *gin.Context) {
	h.tree(c, procurement.BucketRequired)
}

// HandleGetOrdered returns the Ordered tree
func (h *RequirementsHandler) HandleGetOrdered(c *gin.Context) {
	h.tree(c, procurement.BucketOrdered)
}

func (h *RequirementsHandler) tree(c *gin.Context, b procurement.Bucket) {
	suppliers := h.service.Tree(b)
	if suppliers == nil {
		suppliers = []procurement.SupplierGroup{}
	}
	c.JSON(http.StatusOK, TreeResponse{Bucket: b, Suppliers: suppliers})
}

// HandleRefresh re-extracts the whole view
func (h *RequirementsHandler) HandleRefresh(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-refresh-requirements")
	defer h.tracer.EndTransaction(txn)

	if err := h.service.Refresh(c.Request.Context()); err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed_at": time.Now().UTC()})
}

// HandleTransition moves a single entry to the requested state
func (h *RequirementsHandler) HandleTransition(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-transition-requirement")
	defer h.tracer.EndTransaction(txn)

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	target, err := procurement.ParseTarget(req.Target)
	if err != nil {
		respondError(c, err)
		return
	}
	h.tracer.AddAttribute(txn, "entry_id", req.EntryID)
	h.tracer.AddAttribute(txn, "target", string(target))

	result, err := h.service.Transition(c.Request.Context(), req.EntryID, target)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// BulkErrorResponse is a failed group transition together with how far it got
type BulkErrorResponse struct {
	ErrorResponse
	Result services.BulkResult `json:"result"`
}

// HandleBulkTransition moves a whole group. A partial run answers with the
// error status and the BulkResult so the console can show what was applied.
func (h *RequirementsHandler) HandleBulkTransition(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-bulk-transition-requirements")
	defer h.tracer.EndTransaction(txn)

	var req BulkTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	target, err := procurement.ParseTarget(req.Target)
	if err != nil {
		respondError(c, err)
		return
	}
	key := procurement.GroupKey{Supplier: strings.TrimSpace(req.Supplier), Code: strings.TrimSpace(req.Code)}
	h.tracer.AddAttribute(txn, "group", key.String())

	result, err := h.service.BulkTransition(c.Request.Context(), key, target)
	if err != nil {
		h.tracer.RecordError(txn, err)
		status, body := errorBody(c, err)
		c.AbortWithStatusJSON(status, BulkErrorResponse{ErrorResponse: body, Result: result})
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleExport downloads the trees as a workbook. bucket selects one sheet.
func (h *RequirementsHandler) HandleExport(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-export-requirements")
	defer h.tracer.EndTransaction(txn)

	var sheets []export.Sheet
	switch bucket := strings.ToLower(c.Query("bucket")); bucket {
	case "required":
		sheets = append(sheets, export.Sheet{Name: "Required", Tree: h.service.Tree(procurement.BucketRequired)})
	case "ordered":
		sheets = append(sheets, export.Sheet{Name: "Ordered", Tree: h.service.Tree(procurement.BucketOrdered)})
	case "":
		sheets = append(sheets,
			export.Sheet{Name: "Required", Tree: h.service.Tree(procurement.BucketRequired)},
			export.Sheet{Name: "Ordered", Tree: h.service.Tree(procurement.BucketOrdered)},
		)
	default:
		badRequest(c, fmt.Errorf("unknown bucket %q", bucket))
		return
	}

	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, sheets...); err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("requirements-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// HandleListTransitions returns the transition log of an order
func (h *RequirementsHandler) HandleListTransitions(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	events, err := h.service.ListTransitions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []models.TransitionEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// RegisterRoutes registers the handler's routes
func (h *RequirementsHandler) RegisterRoutes(router gin.IRouter) {
	requirements := router.Group("/requirements")
	{
		requirements.GET("/required", h.HandleGetRequired)
		requirements.GET("/ordered", h.HandleGetOrdered)
		requirements.GET("/export", h.HandleExport)
		requirements.POST("/refresh", h.HandleRefresh)
		requirements.POST("/transition", h.HandleTransition)
		requirements.POST("/groups/transition", h.HandleBulkTransition)
	}
	router.GET("/orders/:id/transitions", h.HandleListTransitions)
}
