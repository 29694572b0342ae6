package export

import (
	"bytes"
	"testing"

	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/procurement"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteWorkbook(t *testing.T) {
	status := "Ordered:10"
	orders := []models.WorkOrder{{
		ID:     "o1",
		Number: "WO-1",
		Status: "new",
		Items: []models.LineItem{
			{Supplier: "Acme", Code: "X1", Quantity: decimal.NewFromInt(15), Unit: "m", ProcurementStatus: &status},
			{Supplier: "Acme", Code: "X2", Quantity: decimal.NewFromInt(2), Unit: "pcs", Position: 1},
		},
	}}
	view := procurement.Reconcile(orders, nil)

	var buf bytes.Buffer
	err := WriteWorkbook(&buf,
		Sheet{Name: "Required", Tree: procurement.Aggregate(view.Rows(procurement.BucketRequired), nil)},
		Sheet{Name: "Ordered", Tree: procurement.Aggregate(view.Rows(procurement.BucketOrdered), nil)},
	)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Required", "Ordered"}, f.GetSheetList())

	required, err := f.GetRows("Required")
	require.NoError(t, err)
	require.Len(t, required, 5)
	assert.Equal(t, headers, required[0])
	assert.Equal(t, []string{"Acme", "X1", "", "1 orders", "", "", "5", "", "total"}, required[1])
	assert.Equal(t, "o1:X1:Acme_additional", required[2][2])
	assert.Equal(t, "additional", required[2][8])
	assert.Equal(t, "X2", required[3][1])
	assert.Equal(t, "2", required[4][6])

	ordered, err := f.GetRows("Ordered")
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "10", ordered[1][6])
	assert.Equal(t, "WO-1", ordered[2][3])
	assert.Equal(t, "1", ordered[2][5])
}
