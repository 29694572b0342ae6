package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/backstage/services/procurement/internal/export"
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/procurement"
	"example.com/backstage/services/procurement/internal/services"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockService is a mock of both handler service interfaces
type MockService struct {
	mock.Mock
}

func (m *MockService) Tree(b procurement.Bucket) []procurement.SupplierGroup {
	args := m.Called(b)
	tree, _ := args.Get(0).([]procurement.SupplierGroup)
	return tree
}

func (m *MockService) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockService) Transition(ctx context.Context, entryID string, target procurement.Target) (services.TransitionResult, error) {
	args := m.Called(ctx, entryID, target)
	return args.Get(0).(services.TransitionResult), args.Error(1)
}

func (m *MockService) BulkTransition(ctx context.Context, key procurement.GroupKey, target procurement.Target) (services.BulkResult, error) {
	args := m.Called(ctx, key, target)
	return args.Get(0).(services.BulkResult), args.Error(1)
}

func (m *MockService) ListTransitions(ctx context.Context, orderID string, limit int) ([]models.TransitionEvent, error) {
	args := m.Called(ctx, orderID, limit)
	events, _ := args.Get(0).([]models.TransitionEvent)
	return events, args.Error(1)
}

func (m *MockService) ListExpenses(ctx context.Context) ([]models.ExternalExpense, error) {
	args := m.Called(ctx)
	expenses, _ := args.Get(0).([]models.ExternalExpense)
	return expenses, args.Error(1)
}

func (m *MockService) GetExpense(ctx context.Context, id uuid.UUID) (*models.ExternalExpense, error) {
	args := m.Called(ctx, id)
	expense, _ := args.Get(0).(*models.ExternalExpense)
	return expense, args.Error(1)
}

func (m *MockService) CreateExpense(ctx context.Context, input services.ExpenseInput) (*models.ExternalExpense, error) {
	args := m.Called(ctx, input)
	expense, _ := args.Get(0).(*models.ExternalExpense)
	return expense, args.Error(1)
}

func (m *MockService) UpdateExpense(ctx context.Context, id uuid.UUID, input services.ExpenseInput) (*models.ExternalExpense, error) {
	args := m.Called(ctx, id, input)
	expense, _ := args.Get(0).(*models.ExternalExpense)
	return expense, args.Error(1)
}

func (m *MockService) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func newRouter(svc *MockService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/api/v1")
	NewRequirementsHandler(svc, tracing.Disabled()).RegisterRoutes(v1)
	NewExpensesHandler(svc, tracing.Disabled()).RegisterRoutes(v1)
	NewMetricsHandler(metrics.NewMetrics(), tracing.Disabled()).RegisterRoutes(router, true)
	return router
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleGetRequired(t *testing.T) {
	svc := new(MockService)
	tree := []procurement.SupplierGroup{{
		Supplier: "Acme",
		Groups: []procurement.CodeGroup{{
			Key:           procurement.GroupKey{Supplier: "Acme", Code: "X1"},
			TotalQuantity: decimal.NewFromInt(10),
			OrderCount:    1,
		}},
	}}
	svc.On("Tree", procurement.BucketRequired).Return(tree)
	svc.On("Tree", procurement.BucketOrdered).Return(nil)
	router := newRouter(svc)

	w := do(router, http.MethodGet, "/api/v1/requirements/required", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Bucket    string `json:"bucket"`
		Suppliers []struct {
			Supplier string `json:"supplier"`
		} `json:"suppliers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "required", body.Bucket)
	require.Len(t, body.Suppliers, 1)
	assert.Equal(t, "Acme", body.Suppliers[0].Supplier)

	w = do(router, http.MethodGet, "/api/v1/requirements/ordered", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"suppliers":[]`)
}

func TestHandleTransition(t *testing.T) {
	svc := new(MockService)
	status := "Ordered:10"
	svc.On("Transition", mock.Anything, "o1:X1:Acme", procurement.TargetOrdered).
		Return(services.TransitionResult{EntryID: "o1:X1:Acme", Target: procurement.TargetOrdered, Status: &status, Committed: decimal.NewFromInt(10)}, nil)
	router := newRouter(svc)

	w := do(router, http.MethodPost, "/api/v1/requirements/transition", TransitionRequest{EntryID: "o1:X1:Acme", Target: "Ordered"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"Ordered:10"`)
	svc.AssertExpectations(t)
}

func TestHandleTransitionErrors(t *testing.T) {
	mismatch := procurement.LineError(procurement.KindIdentityMismatch, procurement.LineRef{OrderID: "o1", Position: 2}, "X1", "line item changed")

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", procurement.Errorf(procurement.KindNotFound, "entry missing"), http.StatusNotFound, "NOT_FOUND"},
		{"identity mismatch", mismatch, http.StatusConflict, "IDENTITY_MISMATCH"},
		{"invalid transition", procurement.Errorf(procurement.KindInvalidTransition, "not ordered"), http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Transition", mock.Anything, "e1", procurement.TargetReceived).Return(services.TransitionResult{}, tc.err)
			router := newRouter(svc)

			w := do(router, http.MethodPost, "/api/v1/requirements/transition", TransitionRequest{EntryID: "e1", Target: "received"})
			require.Equal(t, tc.status, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			if tc.code == "IDENTITY_MISMATCH" {
				assert.Equal(t, "o1", body.OrderID)
				assert.Equal(t, 2, *body.Position)
				assert.Equal(t, "X1", body.Material)
			}
			if tc.code == "INTERNAL_ERROR" {
				assert.Equal(t, "internal error", body.Message)
			}
		})
	}
}

func TestHandleTransitionRejectsBadInput(t *testing.T) {
	router := newRouter(new(MockService))

	w := do(router, http.MethodPost, "/api/v1/requirements/transition", map[string]string{"target": "ordered"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/v1/requirements/transition", TransitionRequest{EntryID: "e1", Target: "shipped"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleBulkTransitionPartial(t *testing.T) {
	svc := new(MockService)
	key := procurement.GroupKey{Supplier: "Acme", Code: "X1"}
	result := services.BulkResult{Group: key, Target: procurement.TargetOrdered, Applied: []string{"a"}, Failed: "b", Remaining: []string{"c"}}
	svc.On("BulkTransition", mock.Anything, key, procurement.TargetOrdered).
		Return(result, procurement.Errorf(procurement.KindIdentityMismatch, "line item changed"))
	router := newRouter(svc)

	w := do(router, http.MethodPost, "/api/v1/requirements/groups/transition", BulkTransitionRequest{Supplier: " Acme", Code: "X1 ", Target: "ordered"})
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Code   string              `json:"code"`
		Result services.BulkResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "IDENTITY_MISMATCH", body.Code)
	assert.Equal(t, "b", body.Result.Failed)
	assert.Equal(t, []string{"c"}, body.Result.Remaining)
}

func TestHandleBulkTransitionMasksInternalErrors(t *testing.T) {
	svc := new(MockService)
	key := procurement.GroupKey{Supplier: "Acme", Code: "X1"}
	result := services.BulkResult{Group: key, Target: procurement.TargetReceived, Applied: []string{"a"}, Failed: "b", Remaining: []string{}}
	svc.On("BulkTransition", mock.Anything, key, procurement.TargetReceived).
		Return(result, errors.New("dial tcp 10.0.0.7:5432: connection refused"))
	router := newRouter(svc)

	w := do(router, http.MethodPost, "/api/v1/requirements/groups/transition", BulkTransitionRequest{Supplier: "Acme", Code: "X1", Target: "received"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.7")

	var body BulkErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Message)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.Equal(t, []string{"a"}, body.Result.Applied)
	assert.Equal(t, "b", body.Result.Failed)
}

func TestHandleExport(t *testing.T) {
	svc := new(MockService)
	svc.On("Tree", procurement.BucketOrdered).Return([]procurement.SupplierGroup{})
	router := newRouter(svc)

	w := do(router, http.MethodGet, "/api/v1/requirements/export?bucket=ordered", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "requirements-")
	svc.AssertNotCalled(t, "Tree", procurement.BucketRequired)

	w = do(router, http.MethodGet, "/api/v1/requirements/export?bucket=shipped", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListTransitions(t *testing.T) {
	svc := new(MockService)
	svc.On("ListTransitions", mock.Anything, "o1", 5).Return(nil, nil)
	router := newRouter(svc)

	w := do(router, http.MethodGet, "/api/v1/orders/o1/transitions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/orders/o1/transitions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateExpenseValidation(t *testing.T) {
	svc := new(MockService)
	verr := procurement.Errorf(procurement.KindValidation, "invalid expense")
	verr.Fields = map[string]string{"quantity": "must be greater than 0"}
	svc.On("CreateExpense", mock.Anything, mock.AnythingOfType("services.ExpenseInput")).Return(nil, verr)
	router := newRouter(svc)

	w := do(router, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"supplier": "Acme", "code": "X1", "quantity": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "must be greater than 0", body.Fields["quantity"])
}

func TestHandleExpenseCRUD(t *testing.T) {
	svc := new(MockService)
	id := uuid.New()
	expense := &models.ExternalExpense{ID: id, Supplier: "Acme", Code: "X1", Quantity: decimal.NewFromInt(2)}
	svc.On("CreateExpense", mock.Anything, mock.AnythingOfType("services.ExpenseInput")).Return(expense, nil)
	svc.On("UpdateExpense", mock.Anything, id, mock.AnythingOfType("services.ExpenseInput")).Return(expense, nil)
	svc.On("DeleteExpense", mock.Anything, id).Return(nil)
	svc.On("ListExpenses", mock.Anything).Return([]models.ExternalExpense{*expense}, nil)
	router := newRouter(svc)

	w := do(router, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"supplier": "Acme", "code": "X1", "quantity": "2"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(router, http.MethodPut, "/api/v1/expenses/"+id.String(), map[string]interface{}{"supplier": "Acme", "code": "X1", "quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/expenses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id.String())

	w = do(router, http.MethodDelete, "/api/v1/expenses/"+id.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodDelete, "/api/v1/expenses/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewMetrics()
	router := gin.New()
	NewMetricsHandler(m, tracing.Disabled()).RegisterRoutes(router, true)

	w := do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	m.SetHealth("database", false)
	w = do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetMetricsReportsView(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewMetrics()
	m.SetGauge(metrics.RequiredEntries, 4)
	m.SetGauge(metrics.OrderedEntries, 2)
	m.IncrementCounter(metrics.IdentityMismatch)
	m.RecordTimer(metrics.Transitions, 12)
	m.RecordError(metrics.Transitions)
	m.RecordSuccess(metrics.Transitions)

	router := gin.New()
	NewMetricsHandler(m, tracing.Disabled()).RegisterRoutes(router, true)

	w := do(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.View.RequiredEntries)
	assert.Equal(t, int64(2), body.View.OrderedEntries)
	assert.Equal(t, int64(1), body.View.IdentityMismatches)
	assert.Positive(t, body.Goroutines)

	transition, ok := body.Operations["transition"]
	require.True(t, ok)
	assert.Equal(t, int64(1), transition.Count)
	assert.Equal(t, int64(1), transition.Errors)
	assert.InDelta(t, 50.0, transition.ErrorRate, 0.001)
	assert.NotContains(t, body.Operations, "refresh")
}

func TestMetricsRouteDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewMetricsHandler(metrics.NewMetrics(), tracing.Disabled()).RegisterRoutes(router, false)

	w := do(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
