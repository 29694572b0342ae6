package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/procurement/internal/models"
)

// ErrNotFound is returned (wrapped) when a record does not exist
var ErrNotFound = errors.New("record not found")

// wrap annotates err, translating gorm's not-found error to ErrNotFound
func wrap(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(ErrNotFound, message)
	}
	return errors.Wrap(err, message)
}

func reader(db, readOnlyDB *gorm.DB) *gorm.DB {
	if readOnlyDB != nil {
		return readOnlyDB
	}
	return db
}

var terminalStatuses = []string{"done", "cancelled", "canceled", "completed", "finished"}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// OrderRepository provides access to work orders and their line items
type OrderRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB, readOnlyDB *gorm.DB) *OrderRepository {
	return &OrderRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListActive returns every non-terminal order with its line items in position order
func (r *OrderRepository) ListActive(ctx context.Context) ([]models.WorkOrder, error) {
	var orders []models.WorkOrder
	// Use read-only DB for reads
	err := reader(r.db, r.readOnlyDB).WithContext(ctx).
		Preload("Items", orderedItems).
		Where("LOWER(TRIM(status)) NOT IN ?", terminalStatuses).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active work orders")
	}
	return orders, nil
}

// Get reads an order from the write database so the caller sees the latest
// committed line items, never a lagging replica.
func (r *OrderRepository) Get(ctx context.Context, id string) (*models.WorkOrder, error) {
	var order models.WorkOrder
	err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, wrap(err, "failed to get work order "+id)
	}
	return &order, nil
}

// ReplaceLineItems replaces the full line-item sequence of an order.
// Positions are rewritten to match slice order.
func (r *OrderRepository) ReplaceLineItems(ctx context.Context, orderID string, items []models.LineItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.WorkOrder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).
			First(&order).Error; err != nil {
			return wrap(err, "failed to lock work order "+orderID)
		}

		if err := tx.Where("work_order_id = ?", orderID).Delete(&models.LineItem{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete line items")
		}

		if len(items) > 0 {
			replacement := make([]models.LineItem, len(items))
			for i, item := range items {
				item.ID = 0
				item.WorkOrderID = orderID
				item.Position = i
				replacement[i] = item
			}
			if err := tx.Create(&replacement).Error; err != nil {
				return errors.Wrap(err, "failed to create line items")
			}
		}

		return tx.Model(&order).Update("updated_at", gorm.Expr("NOW()")).Error
	})
}

// Save creates or updates an order together with its line items
func (r *OrderRepository) Save(ctx context.Context, order *models.WorkOrder) error {
	items := order.Items
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"number", "customer", "status", "updated_at"}),
		}).Omit("Items").Create(order).Error; err != nil {
			return errors.Wrap(err, "failed to save work order")
		}

		if err := tx.Where("work_order_id = ?", order.ID).Delete(&models.LineItem{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete line items")
		}
		for i := range items {
			items[i].ID = 0
			items[i].WorkOrderID = order.ID
			items[i].Position = i
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return errors.Wrap(err, "failed to create line items")
			}
		}
		return nil
	})
	order.Items = items
	return err
}
