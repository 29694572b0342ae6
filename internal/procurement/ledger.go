package procurement

import (
	"strings"

	"example.com/backstage/services/procurement/internal/models"
)

// MergeExpenses maps general expenses through the status codec the same way
// line items are mapped. Expenses never produce additional rows and received
// expenses are no longer tracked.
func MergeExpenses(expenses []models.ExternalExpense) []Requirement {
	var rows []Requirement
	for i := range expenses {
		if row, ok := ExpenseRow(&expenses[i]); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// ExpenseRow builds the view row of a single expense. ok is false when the
// expense is not tracked.
func ExpenseRow(expense *models.ExternalExpense) (Requirement, bool) {
	supplier := strings.TrimSpace(expense.Supplier)
	code := strings.TrimSpace(expense.Code)
	if supplier == "" || code == "" || !expense.Quantity.IsPositive() {
		return Requirement{}, false
	}

	status := DecodeStatus(expense.ProcurementStatus)
	if status.Kind == StatusReceived {
		return Requirement{}, false
	}

	row := Requirement{
		ID:               ExpenseEntryID(expense.ID.String()),
		Bucket:           BucketRequired,
		Supplier:         supplier,
		Code:             code,
		Unit:             expense.Unit,
		Note:             expense.Note,
		ExpenseID:        expense.ID.String(),
		RequiredQuantity: expense.Quantity,
		ExpenseQuantity:  expense.Quantity,
		IsGeneralExpense: true,
	}
	if status.IsOrdered() {
		row.Bucket = BucketOrdered
		row.OrderedQuantity = status.Committed(expense.Quantity)
	}
	return row, true
}
