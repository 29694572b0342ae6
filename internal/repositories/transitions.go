package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/procurement/internal/models"
)

// TransitionRepository is the append-only log of applied transitions
type TransitionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewTransitionRepository creates a new repository
func NewTransitionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *TransitionRepository {
	return &TransitionRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Append records one transition
func (r *TransitionRepository) Append(ctx context.Context, event *models.TransitionEvent) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(event).Error, "failed to append transition event")
}

// ListForOrder returns the transitions applied to an order, newest first
func (r *TransitionRepository) ListForOrder(ctx context.Context, orderID string, limit int) ([]models.TransitionEvent, error) {
	var events []models.TransitionEvent
	err := reader(r.db, r.readOnlyDB).WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transition events")
	}
	return events, nil
}
