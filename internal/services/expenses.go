package services

import (
	"context"
	"reflect"
	"strings"
	"time"

	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/notify"
	"example.com/backstage/services/procurement/internal/procurement"
	"example.com/backstage/services/procurement/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ExpenseInput is the editable part of a general expense
type ExpenseInput struct {
	Supplier string          `json:"supplier" validate:"required"`
	Code     string          `json:"code" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit     string          `json:"unit"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Tax      decimal.Decimal `json:"tax" validate:"gte=0"`
	Note     string          `json:"note"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// validate decimals by value so gt/gte tags apply
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (s *ProcurementService) validateExpense(input *ExpenseInput) error {
	input.Supplier = strings.TrimSpace(input.Supplier)
	input.Code = strings.TrimSpace(input.Code)

	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "failed to validate expense")
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = describe(fe)
	}
	verr := procurement.Errorf(procurement.KindValidation, "invalid expense")
	verr.Fields = fields
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must not be less than " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// ListExpenses returns every general expense
func (s *ProcurementService) ListExpenses(ctx context.Context) ([]models.ExternalExpense, error) {
	expenses, err := s.expenses.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list expenses")
	}
	return expenses, nil
}

// GetExpense returns one general expense
func (s *ProcurementService) GetExpense(ctx context.Context, id uuid.UUID) (*models.ExternalExpense, error) {
	expense, err := s.expenses.Get(ctx, id)
	if err != nil {
		return nil, expenseError(err, id)
	}
	return expense, nil
}

// CreateExpense validates and stores a new expense. It enters the Required view.
func (s *ProcurementService) CreateExpense(ctx context.Context, input ExpenseInput) (expense *models.ExternalExpense, err error) {
	start := time.Now()
	defer func() { s.metrics.Track(metrics.ExpenseWrites, start, err) }()

	if err := s.validateExpense(&input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expense = &models.ExternalExpense{}
	input.applyTo(expense)
	if err := s.expenses.Create(ctx, expense); err != nil {
		return nil, errors.Wrap(err, "failed to create expense")
	}

	log.Info().Str("expense_id", expense.ID.String()).Str("supplier", expense.Supplier).Str("code", expense.Code).Msg("Expense created")
	s.syncExpense(expense.ID, expense)
	return expense, nil
}

// UpdateExpense replaces the editable fields of an expense. Its procurement
// status is left as is.
func (s *ProcurementService) UpdateExpense(ctx context.Context, id uuid.UUID, input ExpenseInput) (expense *models.ExternalExpense, err error) {
	start := time.Now()
	defer func() { s.metrics.Track(metrics.ExpenseWrites, start, err) }()

	if err := s.validateExpense(&input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expense, err = s.expenses.Get(ctx, id)
	if err != nil {
		return nil, expenseError(err, id)
	}
	input.applyTo(expense)
	if err := s.expenses.Update(ctx, expense); err != nil {
		return nil, expenseError(err, id)
	}

	log.Info().Str("expense_id", id.String()).Msg("Expense updated")
	s.syncExpense(id, expense)
	return expense, nil
}

// DeleteExpense removes an expense and its view row
func (s *ProcurementService) DeleteExpense(ctx context.Context, id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { s.metrics.Track(metrics.ExpenseWrites, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expenses.Delete(ctx, id); err != nil {
		return expenseError(err, id)
	}

	log.Info().Str("expense_id", id.String()).Msg("Expense deleted")
	s.syncExpense(id, nil)
	return nil
}

// syncExpense re-derives the view row of one expense. A nil expense removes it.
func (s *ProcurementService) syncExpense(id uuid.UUID, expense *models.ExternalExpense) {
	var rows []procurement.Requirement
	if expense != nil {
		if row, ok := procurement.ExpenseRow(expense); ok {
			rows = append(rows, row)
		}
	}
	view := procurement.ReplaceExpense(s.currentView(), id.String(), rows...)
	s.setView(view)
	s.notify(notify.Event{Type: notify.ExpensesChanged, EntryID: procurement.ExpenseEntryID(id.String())}, view)
}

func (in ExpenseInput) applyTo(expense *models.ExternalExpense) {
	expense.Supplier = in.Supplier
	expense.Code = in.Code
	expense.Quantity = in.Quantity
	expense.Unit = strings.TrimSpace(in.Unit)
	expense.Price = in.Price
	expense.Tax = in.Tax
	expense.Note = in.Note
}

func expenseError(err error, id uuid.UUID) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return procurement.Errorf(procurement.KindNotFound, "expense %s not found", id)
	}
	return errors.Wrapf(err, "failed to access expense %s", id)
}
