package procurement

import (
	"strings"

	"example.com/backstage/services/procurement/internal/models"
	"github.com/shopspring/decimal"
)

// Extract scans non-terminal work orders and derives one candidate row per
// tracked quantity. Line items are visited in position order.
func Extract(orders []models.WorkOrder) []Requirement {
	var rows []Requirement
	for i := range orders {
		rows = append(rows, ExtractOrder(&orders[i])...)
	}
	return rows
}

// ExtractOrder derives the candidate rows of a single order
func ExtractOrder(order *models.WorkOrder) []Requirement {
	if order.IsTerminal() {
		return nil
	}

	var rows []Requirement
	occurrences := make(map[GroupKey]int)

	for position, item := range order.Items {
		supplier := strings.TrimSpace(item.Supplier)
		code := strings.TrimSpace(item.Code)
		if supplier == "" || code == "" {
			continue
		}

		key := GroupKey{Supplier: supplier, Code: code}
		occurrence := occurrences[key]
		occurrences[key]++

		if !item.Quantity.IsPositive() {
			continue
		}

		base := Requirement{
			ID:               LineItemID(order.ID, code, supplier, occurrence),
			Supplier:         supplier,
			Code:             code,
			Unit:             item.Unit,
			Note:             item.Note,
			Ref:              &LineRef{OrderID: order.ID, Position: position},
			OrderNumber:      order.Number,
			Customer:         order.Customer,
			RequiredQuantity: item.Quantity,
		}
		rows = append(rows, classifyLine(base, DecodeStatus(item.ProcurementStatus))...)
	}

	return rows
}

// classifyLine splits one line item into its Ordered row and any remainder
// still to be ordered.
func classifyLine(base Requirement, status Status) []Requirement {
	required := base.RequiredQuantity
	committed := status.Committed(required)

	var rows []Requirement
	switch status.Kind {
	case StatusOrdered, StatusLegacyOrdered:
		rows = append(rows, orderedLine(base, committed, status.Received(required)))
	case StatusReceived:
		// nothing left in Ordered, only a grown requirement is tracked again
	default:
		pending := base
		pending.Bucket = BucketRequired
		return append(rows, pending)
	}

	if required.GreaterThan(committed) {
		rows = append(rows, additionalRow(base, committed))
	}
	return rows
}

// orderedLine is the Ordered row of a line. When part of the quantity was
// received earlier only the rest is awaited, shown as an additional row.
func orderedLine(base Requirement, committed, received decimal.Decimal) Requirement {
	row := base
	row.Bucket = BucketOrdered
	row.OrderedQuantity = committed
	if received.IsPositive() {
		row.ID = AdditionalID(BaseID(base.ID))
		row.IsAdditional = true
		row.AdditionalQuantity = committed.Sub(received)
	}
	return row
}

func additionalRow(base Requirement, committed decimal.Decimal) Requirement {
	row := base
	row.ID = AdditionalID(BaseID(base.ID))
	row.Bucket = BucketRequired
	row.IsAdditional = true
	row.OrderedQuantity = committed
	row.AdditionalQuantity = row.RequiredQuantity.Sub(committed)
	return row
}
