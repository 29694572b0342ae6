package handlers

import (
	"context"
	"net/http"

	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/services"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExpenseService manages general expenses
type ExpenseService interface {
	ListExpenses(ctx context.Context) ([]models.ExternalExpense, error)
	GetExpense(ctx context.Context, id uuid.UUID) (*models.ExternalExpense, error)
	CreateExpense(ctx context.Context, input services.ExpenseInput) (*models.ExternalExpense, error)
	UpdateExpense(ctx context.Context, id uuid.UUID, input services.ExpenseInput) (*models.ExternalExpense, error)
	DeleteExpense(ctx context.Context, id uuid.UUID) error
}

var _ ExpenseService = (*services.ProcurementService)(nil)

// ExpensesHandler handles general expense CRUD
type ExpensesHandler struct {
	service ExpenseService
	tracer  tracing.Tracer
}

// NewExpensesHandler creates a new expenses handler
func NewExpensesHandler(service ExpenseService, tracer tracing.Tracer) *ExpensesHandler {
	return &ExpensesHandler{
		service: service,
		tracer:  tracer,
	}
}

// HandleList returns every expense
func (h *ExpensesHandler) HandleList(c *gin.Context) {
	expenses, err := h.service.ListExpenses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if expenses == nil {
		expenses = []models.ExternalExpense{}
	}
	c.JSON(http.StatusOK, expenses)
}

// HandleGet returns one expense
func (h *ExpensesHandler) HandleGet(c *gin.Context) {
	id, ok := expenseID(c)
	if !ok {
		return
	}
	expense, err := h.service.GetExpense(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

// HandleCreate creates an expense
func (h *ExpensesHandler) HandleCreate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-expense")
	defer h.tracer.EndTransaction(txn)

	var input services.ExpenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	expense, err := h.service.CreateExpense(c.Request.Context(), input)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

// HandleUpdate replaces the editable fields of an expense
func (h *ExpensesHandler) HandleUpdate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-expense")
	defer h.tracer.EndTransaction(txn)

	id, ok := expenseID(c)
	if !ok {
		return
	}
	var input services.ExpenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	expense, err := h.service.UpdateExpense(c.Request.Context(), id, input)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

// HandleDelete deletes an expense
func (h *ExpensesHandler) HandleDelete(c *gin.Context) {
	id, ok := expenseID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteExpense(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func expenseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return uuid.Nil, false
	}
	return id, true
}

// RegisterRoutes registers the handler's routes
func (h *ExpensesHandler) RegisterRoutes(router gin.IRouter) {
	expenses := router.Group("/expenses")
	{
		expenses.GET("", h.HandleList)
		expenses.POST("", h.HandleCreate)
		expenses.GET("/:id", h.HandleGet)
		expenses.PUT("/:id", h.HandleUpdate)
		expenses.DELETE("/:id", h.HandleDelete)
	}
}
