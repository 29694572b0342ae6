package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/procurement/internal/models"
)

// ExpenseRepository provides access to general expense records
type ExpenseRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewExpenseRepository creates a new repository
func NewExpenseRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// List returns every expense, oldest first
func (r *ExpenseRepository) List(ctx context.Context) ([]models.ExternalExpense, error) {
	var expenses []models.ExternalExpense
	err := reader(r.db, r.readOnlyDB).WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&expenses).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list expenses")
	}
	return expenses, nil
}

// Get reads an expense from the write database
func (r *ExpenseRepository) Get(ctx context.Context, id uuid.UUID) (*models.ExternalExpense, error) {
	var expense models.ExternalExpense
	err := r.db.WithContext(ctx).First(&expense, "id = ?", id).Error
	if err != nil {
		return nil, wrap(err, "failed to get expense "+id.String())
	}
	return &expense, nil
}

// Create creates a new expense
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.ExternalExpense) error {
	// Use write DB for writes
	return errors.Wrap(r.db.WithContext(ctx).Create(expense).Error, "failed to create expense")
}

// Update saves every editable field of an expense
func (r *ExpenseRepository) Update(ctx context.Context, expense *models.ExternalExpense) error {
	res := r.db.WithContext(ctx).
		Model(&models.ExternalExpense{}).
		Where("id = ?", expense.ID).
		Select("supplier", "code", "quantity", "unit", "price", "tax", "procurement_status", "note").
		Updates(expense)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update expense")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "failed to update expense "+expense.ID.String())
	}
	return nil
}

// UpdateStatus writes only the procurement status of an expense
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status *string) error {
	res := r.db.WithContext(ctx).
		Model(&models.ExternalExpense{}).
		Where("id = ?", id).
		Update("procurement_status", status)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update expense status")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "failed to update expense status "+id.String())
	}
	return nil
}

// Delete soft-deletes an expense
func (r *ExpenseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.ExternalExpense{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to delete expense")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "failed to delete expense "+id.String())
	}
	return nil
}
