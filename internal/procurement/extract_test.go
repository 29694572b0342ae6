package procurement

import (
	"testing"

	"example.com/backstage/services/procurement/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(supplier, code, quantity string, status *string) models.LineItem {
	return models.LineItem{Supplier: supplier, Code: code, Quantity: qty(quantity), Unit: "m", ProcurementStatus: status}
}

func order(id string, items ...models.LineItem) models.WorkOrder {
	for i := range items {
		items[i].WorkOrderID = id
		items[i].Position = i
	}
	return models.WorkOrder{ID: id, Number: "WO-" + id, Customer: "Customer " + id, Status: "in_progress", Items: items}
}

func TestExtractRequiredLine(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1", line("Acme", "X1", "10", nil))})

	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "o1:X1:Acme", row.ID)
	assert.Equal(t, BucketRequired, row.Bucket)
	assert.False(t, row.IsAdditional)
	assert.Equal(t, &LineRef{OrderID: "o1", Position: 0}, row.Ref)
	assert.Equal(t, "WO-o1", row.OrderNumber)
	requireQty(t, "10", row.DisplayQuantity())
}

func TestExtractOrderedBelowRequirement(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1", line("Acme", "X1", "15", strPtr("Ordered:10")))})

	required, ordered := Partition(rows)
	require.Len(t, ordered, 1)
	require.Len(t, required, 1)

	assert.Equal(t, "o1:X1:Acme", ordered[0].ID)
	requireQty(t, "10", ordered[0].DisplayQuantity())

	assert.Equal(t, "o1:X1:Acme_additional", required[0].ID)
	assert.True(t, required[0].IsAdditional)
	requireQty(t, "5", required[0].DisplayQuantity())
	requireQty(t, "10", required[0].OrderedQuantity)
}

func TestExtractOrderedAtOrAboveRequirement(t *testing.T) {
	for _, status := range []string{"Ordered:10", "Ordered:12"} {
		rows := Extract([]models.WorkOrder{order("o1", line("Acme", "X1", "10", strPtr(status)))})
		require.Len(t, rows, 1, status)
		assert.Equal(t, BucketOrdered, rows[0].Bucket)
	}
}

func TestExtractLegacyOrderedUsesCurrentRequirement(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1", line("Acme", "X1", "8", strPtr("Ordered")))})

	require.Len(t, rows, 1)
	assert.Equal(t, BucketOrdered, rows[0].Bucket)
	requireQty(t, "8", rows[0].DisplayQuantity())
}

func TestExtractReceived(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1",
		line("Acme", "X1", "10", strPtr("Received:10")),
		line("Acme", "X2", "12", strPtr("Received:10")),
	)})

	require.Len(t, rows, 1)
	assert.Equal(t, "o1:X2:Acme_additional", rows[0].ID)
	assert.Equal(t, BucketRequired, rows[0].Bucket)
	requireQty(t, "2", rows[0].DisplayQuantity())
}

func TestExtractOrderedAfterReceipt(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1", line("Acme", "X1", "20", strPtr("Ordered:15;Received:10")))})

	require.Len(t, rows, 2)
	assert.Equal(t, "o1:X1:Acme_additional", rows[0].ID)
	assert.Equal(t, BucketOrdered, rows[0].Bucket)
	assert.True(t, rows[0].IsAdditional)
	requireQty(t, "5", rows[0].DisplayQuantity())

	assert.Equal(t, "o1:X1:Acme_additional", rows[1].ID)
	assert.Equal(t, BucketRequired, rows[1].Bucket)
	requireQty(t, "5", rows[1].DisplayQuantity())
}

func TestExtractUnparseableStatusIsRequired(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1", line("Acme", "X1", "10", strPtr("Ordered:lots")))})

	require.Len(t, rows, 1)
	assert.Equal(t, BucketRequired, rows[0].Bucket)
	requireQty(t, "10", rows[0].RequiredQuantity)
}

func TestExtractSkipsTerminalOrders(t *testing.T) {
	for _, status := range []string{"Done", "cancelled", "CANCELED", "Completed", "finished"} {
		o := order("o1", line("Acme", "X1", "10", nil))
		o.Status = status
		assert.Empty(t, Extract([]models.WorkOrder{o}), status)
	}
}

func TestExtractSkipsIncompleteAndEmptyLines(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1",
		line("", "X1", "10", nil),
		line("Acme", "", "10", nil),
		line("Acme", "X1", "0", nil),
		line("Acme", "X1", "4", nil),
	)})

	require.Len(t, rows, 1)
	// the zero-quantity duplicate still takes an occurrence slot
	assert.Equal(t, "o1:X1:Acme:2", rows[0].ID)
	assert.Equal(t, 3, rows[0].Ref.Position)
}

func TestExtractDisambiguatesDuplicates(t *testing.T) {
	rows := Extract([]models.WorkOrder{order("o1",
		line("Acme", "X1", "1", nil),
		line("Beta", "X1", "2", nil),
		line("Acme", "X1", "3", nil),
		line("Acme", "X1", "4", nil),
	)})

	require.Len(t, rows, 4)
	assert.Equal(t, "o1:X1:Acme", rows[0].ID)
	assert.Equal(t, "o1:X1:Beta", rows[1].ID)
	assert.Equal(t, "o1:X1:Acme:2", rows[2].ID)
	assert.Equal(t, 2, rows[2].Ref.Position)
	assert.Equal(t, "o1:X1:Acme:3", rows[3].ID)
	assert.Equal(t, 3, rows[3].Ref.Position)
}

func TestMergeExpenses(t *testing.T) {
	pending := models.ExternalExpense{ID: uuid.New(), Supplier: "Acme", Code: "X1", Quantity: qty("3")}
	ordered := models.ExternalExpense{ID: uuid.New(), Supplier: "Acme", Code: "X1", Quantity: qty("4"), ProcurementStatus: strPtr("Ordered:4")}
	received := models.ExternalExpense{ID: uuid.New(), Supplier: "Acme", Code: "X1", Quantity: qty("5"), ProcurementStatus: strPtr("Received:5")}
	empty := models.ExternalExpense{ID: uuid.New(), Supplier: "Acme", Code: "X1", Quantity: qty("0")}

	rows := MergeExpenses([]models.ExternalExpense{pending, ordered, received, empty})
	require.Len(t, rows, 2)

	assert.Equal(t, "expense:"+pending.ID.String(), rows[0].ID)
	assert.Equal(t, BucketRequired, rows[0].Bucket)
	assert.True(t, rows[0].IsGeneralExpense)
	assert.Nil(t, rows[0].Ref)
	requireQty(t, "3", rows[0].DisplayQuantity())

	assert.Equal(t, BucketOrdered, rows[1].Bucket)
	assert.False(t, rows[1].IsAdditional)
	requireQty(t, "4", rows[1].DisplayQuantity())
}

func TestReconcileCombinesOrdersAndExpenses(t *testing.T) {
	expense := models.ExternalExpense{ID: uuid.New(), Supplier: "Acme", Code: "X1", Quantity: qty("2")}
	view := Reconcile(
		[]models.WorkOrder{order("o1", line("Acme", "X1", "15", strPtr("Ordered:10")))},
		[]models.ExternalExpense{expense},
	)

	required := view.Rows(BucketRequired)
	require.Len(t, required, 2)
	assert.True(t, required[0].IsAdditional)
	assert.True(t, required[1].IsGeneralExpense)
	assert.Equal(t, 1, view.Len(BucketOrdered))
}

func TestReplaceOrder(t *testing.T) {
	orders := []models.WorkOrder{
		order("o1", line("Acme", "X1", "10", nil), line("Acme", "X2", "3", nil)),
		order("o2", line("Acme", "X1", "4", nil)),
	}
	v := Reconcile(orders, nil)

	// o1 grew its second line after it was ordered, and dropped nothing
	edited := order("o1", line("Acme", "X1", "10", nil), line("Acme", "X2", "5", strPtr("Ordered:3")))
	v = ReplaceOrder(v, "o1", ExtractOrder(&edited))

	assert.Equal(t, []string{"o1:X1:Acme", "o2:X1:Acme", "o1:X2:Acme_additional"}, ids(v.Rows(BucketRequired)))
	assert.Equal(t, []string{"o1:X2:Acme"}, ids(v.Rows(BucketOrdered)))

	v = ReplaceOrder(v, "o1", nil)
	assert.Equal(t, []string{"o2:X1:Acme"}, ids(v.Rows(BucketRequired)))
	assert.Zero(t, v.Len(BucketOrdered))
}

func TestReplaceExpense(t *testing.T) {
	expense := models.ExternalExpense{ID: uuid.New(), Supplier: "Acme", Code: "X1", Quantity: qty("2")}
	v := Reconcile(nil, []models.ExternalExpense{expense})
	require.Equal(t, 1, v.Len(BucketRequired))

	expense.ProcurementStatus = strPtr("Ordered:2")
	row, ok := ExpenseRow(&expense)
	require.True(t, ok)
	v = ReplaceExpense(v, expense.ID.String(), row)
	assert.Zero(t, v.Len(BucketRequired))
	assert.Equal(t, 1, v.Len(BucketOrdered))

	v = ReplaceExpense(v, expense.ID.String())
	assert.Zero(t, v.Len(BucketOrdered))
}
