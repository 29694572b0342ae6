package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WorkOrder is a customer job. Owned by order management; procurement only
// reads it and replaces its line items.
type WorkOrder struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Number    string         `gorm:"index" json:"number"`
	Customer  string         `json:"customer"`
	Status    string         `gorm:"not null;default:'new'" json:"status"`
	Items     []LineItem     `gorm:"foreignKey:WorkOrderID;constraint:OnDelete:CASCADE" json:"items"`
}

var terminalOrderStatuses = map[string]struct{}{
	"done":      {},
	"cancelled": {},
	"canceled":  {},
	"completed": {},
	"finished":  {},
}

// IsTerminal reports whether the order has left procurement tracking
func (o WorkOrder) IsTerminal() bool {
	_, ok := terminalOrderStatuses[strings.ToLower(strings.TrimSpace(o.Status))]
	return ok
}

// LineItem is one material need of a work order. Position is the item's index
// in the order's line-item sequence and is part of its identity.
type LineItem struct {
	ID                uint            `gorm:"primaryKey" json:"-"`
	WorkOrderID       string          `gorm:"not null;uniqueIndex:idx_line_item_position" json:"work_order_id"`
	Position          int             `gorm:"not null;uniqueIndex:idx_line_item_position" json:"position"`
	Supplier          string          `json:"supplier"`
	Code              string          `gorm:"index" json:"code"`
	Quantity          decimal.Decimal `gorm:"type:numeric(14,4);not null;default:0" json:"quantity"`
	Unit              string          `json:"unit"`
	ProcurementStatus *string         `json:"procurement_status"`
	Note              string          `json:"note"`
}

// ExternalExpense is a procurement entry that belongs to no order
type ExternalExpense struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	Supplier          string          `gorm:"not null" json:"supplier"`
	Code              string          `gorm:"not null" json:"code"`
	Quantity          decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"quantity"`
	Unit              string          `json:"unit"`
	Price             decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"price"`
	Tax               decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"tax"`
	ProcurementStatus *string         `json:"procurement_status"`
	Note              string          `json:"note"`
}

// BeforeCreate assigns an id to new expenses
func (e *ExternalExpense) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Company is an externally managed supplier with a manual display priority
type Company struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Name         string    `gorm:"not null;uniqueIndex" json:"name"`
	DisplayOrder int       `gorm:"not null;default:0" json:"display_order"`
}

// TransitionEvent records one applied procurement transition
type TransitionEvent struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	EntryID    string          `gorm:"not null;index" json:"entry_id"`
	OrderID    *string         `gorm:"index" json:"order_id,omitempty"`
	Position   *int            `json:"position,omitempty"`
	ExpenseID  *uuid.UUID      `gorm:"type:uuid" json:"expense_id,omitempty"`
	Supplier   string          `json:"supplier"`
	Code       string          `json:"code"`
	Target     string          `gorm:"not null" json:"target"`
	FromStatus *string         `json:"from_status"`
	ToStatus   *string         `json:"to_status"`
	Quantity   decimal.Decimal `gorm:"type:numeric(14,4)" json:"quantity"`
}

// BeforeCreate assigns an id to new events
func (e *TransitionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&WorkOrder{},
		&LineItem{},
		&ExternalExpense{},
		&Company{},
		&TransitionEvent{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
