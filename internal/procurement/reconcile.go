package procurement

import "example.com/backstage/services/procurement/internal/models"

// Partition splits candidate rows by bucket, preserving order
func Partition(rows []Requirement) (required, ordered []Requirement) {
	for _, row := range rows {
		if row.Bucket == BucketOrdered {
			ordered = append(ordered, row)
		} else {
			required = append(required, row)
		}
	}
	return required, ordered
}

// Reconcile runs a full extraction over orders and expenses and returns the
// resulting view. Order rows come before expense rows in both buckets.
func Reconcile(orders []models.WorkOrder, expenses []models.ExternalExpense) View {
	rows := Extract(orders)
	rows = append(rows, MergeExpenses(expenses)...)
	return NewView(rows)
}

// ReplaceOrder swaps every row derived from orderID for rows, typically the
// output of ExtractOrder after the order changed. Rows that keep their id keep
// their position; an empty rows drops the order from the view.
func ReplaceOrder(v View, orderID string, rows []Requirement) View {
	return replaceRows(v, func(row Requirement) bool {
		return row.Ref != nil && row.Ref.OrderID == orderID
	}, rows)
}

// ReplaceExpense swaps the row of expenseID for rows
func ReplaceExpense(v View, expenseID string, rows ...Requirement) View {
	return replaceRows(v, func(row Requirement) bool {
		return row.IsGeneralExpense && row.ExpenseID == expenseID
	}, rows)
}

func replaceRows(v View, match func(Requirement) bool, rows []Requirement) View {
	kept := make(map[Bucket]map[string]struct{}, 2)
	patches := make([]Patch, 0, len(rows))
	for _, row := range rows {
		if kept[row.Bucket] == nil {
			kept[row.Bucket] = make(map[string]struct{})
		}
		kept[row.Bucket][row.ID] = struct{}{}
		patches = append(patches, Upsert(row))
	}

	for _, b := range []Bucket{BucketRequired, BucketOrdered} {
		for _, row := range v.Rows(b) {
			if !match(row) {
				continue
			}
			if _, ok := kept[b][row.ID]; !ok {
				patches = append(patches, Remove(b, row.ID))
			}
		}
	}
	return ApplyAll(v, patches)
}
