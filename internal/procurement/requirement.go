package procurement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Bucket is the view a requirement row is shown in
type Bucket int

const (
	BucketRequired Bucket = iota
	BucketOrdered
)

// String method for Bucket enum
func (b Bucket) String() string {
	switch b {
	case BucketRequired:
		return "required"
	case BucketOrdered:
		return "ordered"
	default:
		return "unknown"
	}
}

// MarshalText lets buckets render as names in JSON
func (b Bucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Target is the state an operator asks an entry to move to
type Target string

const (
	TargetOrdered  Target = "ordered"
	TargetReceived Target = "received"
	TargetRequired Target = "required"
)

// ParseTarget parses a target name (case-insensitive)
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetOrdered, TargetReceived, TargetRequired:
		return t, nil
	}
	return "", Errorf(KindInvalidTransition, "unknown target state %q", s)
}

// SourceBucket returns the bucket an entry must be in to move to t
func (t Target) SourceBucket() Bucket {
	if t == TargetOrdered {
		return BucketRequired
	}
	return BucketOrdered
}

// LineRef is the composite key of a line item: the order plus the item's
// index in the order's line-item sequence.
type LineRef struct {
	OrderID  string `json:"order_id"`
	Position int    `json:"position"`
}

// String renders the reference for logs and errors
func (r LineRef) String() string {
	return fmt.Sprintf("%s#%d", r.OrderID, r.Position)
}

// GroupKey identifies an aggregate group for bulk actions
type GroupKey struct {
	Supplier string `json:"supplier"`
	Code     string `json:"code"`
}

// String renders the group key as code:supplier
func (k GroupKey) String() string {
	return k.Code + ":" + k.Supplier
}

// Requirement is a derived view row. It is rebuilt on every extraction or
// patched by the mutator and is never a source of truth.
type Requirement struct {
	ID       string   `json:"id"`
	Bucket   Bucket   `json:"bucket"`
	Supplier string   `json:"supplier"`
	Code     string   `json:"code"`
	Unit     string   `json:"unit,omitempty"`
	Note     string   `json:"note,omitempty"`
	Ref      *LineRef `json:"ref,omitempty"`

	OrderNumber string `json:"order_number,omitempty"`
	Customer    string `json:"customer,omitempty"`
	ExpenseID   string `json:"expense_id,omitempty"`

	// RequiredQuantity is the line item's required quantity when the row was built
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
	// OrderedQuantity is the quantity committed to the supplier
	OrderedQuantity decimal.Decimal `json:"ordered_quantity"`
	// AdditionalQuantity is the remainder carried by an additional row
	AdditionalQuantity decimal.Decimal `json:"additional_quantity"`
	// ExpenseQuantity is the quantity recorded on a general expense
	ExpenseQuantity decimal.Decimal `json:"expense_quantity"`

	IsAdditional     bool `json:"is_additional"`
	IsGeneralExpense bool `json:"is_general_expense"`
}

// Key returns the group this row aggregates into
func (r Requirement) Key() GroupKey {
	return GroupKey{Supplier: r.Supplier, Code: r.Code}
}

// DisplayQuantity is the quantity shown for the row. Group totals are sums
// of this value.
func (r Requirement) DisplayQuantity() decimal.Decimal {
	switch {
	case r.IsAdditional:
		return r.AdditionalQuantity
	case r.IsGeneralExpense:
		return r.ExpenseQuantity
	case r.Bucket == BucketOrdered:
		return r.OrderedQuantity
	default:
		return r.RequiredQuantity
	}
}

const additionalSuffix = "_additional"

// AdditionalID returns the id of the additional row derived from baseID
func AdditionalID(baseID string) string {
	return baseID + additionalSuffix
}

// BaseID strips the additional suffix from id
func BaseID(id string) string {
	return strings.TrimSuffix(id, additionalSuffix)
}

// LineItemID builds the identifier of the n-th (0-based) occurrence of a
// code/supplier pair within an order.
func LineItemID(orderID, code, supplier string, occurrence int) string {
	id := orderID + ":" + code + ":" + supplier
	if occurrence > 0 {
		id = fmt.Sprintf("%s:%d", id, occurrence+1)
	}
	return id
}

// ExpenseEntryID builds the identifier of a general expense row
func ExpenseEntryID(expenseID string) string {
	return "expense:" + expenseID
}
