// Package export renders requirement trees as xlsx workbooks.
package export

import (
	"io"
	"strconv"

	"example.com/backstage/services/procurement/internal/procurement"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ContentType of the written workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet is one bucket's tree, written to its own worksheet
type Sheet struct {
	Name string
	Tree []procurement.SupplierGroup
}

var headers = []string{"Supplier", "Code", "Entry", "Order", "Customer", "Position", "Quantity", "Unit", "Kind", "Note"}

// WriteWorkbook writes one worksheet per sheet to w. Every code group starts
// with a bold summary row carrying the group total and order count.
func WriteWorkbook(w io.Writer, sheets ...Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create header style")
	}
	groupStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "failed to create group style")
	}

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return errors.Wrapf(err, "failed to name sheet %s", sheet.Name)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return errors.Wrapf(err, "failed to create sheet %s", sheet.Name)
		}
		if err := writeSheet(f, sheet, headerStyle, groupStyle); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "failed to write workbook")
	}
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet, headerStyle, groupStyle int) error {
	if err := setRow(f, sheet.Name, 1, toCells(headers)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet.Name, "A1", last, headerStyle); err != nil {
		return errors.Wrap(err, "failed to style header")
	}

	row := 2
	for _, supplier := range sheet.Tree {
		for _, group := range supplier.Groups {
			summary := []interface{}{
				supplier.Supplier, group.Key.Code, "", strconv.Itoa(group.OrderCount) + " orders", "", "",
				group.TotalQuantity.InexactFloat64(), "", "total", "",
			}
			if err := setRow(f, sheet.Name, row, summary); err != nil {
				return err
			}
			first, _ := excelize.CoordinatesToCellName(1, row)
			end, _ := excelize.CoordinatesToCellName(len(headers), row)
			if err := f.SetCellStyle(sheet.Name, first, end, groupStyle); err != nil {
				return errors.Wrap(err, "failed to style group row")
			}
			row++

			for _, m := range group.Members {
				if err := setRow(f, sheet.Name, row, memberCells(m)); err != nil {
					return err
				}
				row++
			}
		}
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet.Name, col, col, 15); err != nil {
			return errors.Wrap(err, "failed to set column width")
		}
	}
	return nil
}

func memberCells(m procurement.Requirement) []interface{} {
	order, position := "", ""
	if m.Ref != nil {
		order = m.OrderNumber
		if order == "" {
			order = m.Ref.OrderID
		}
		position = strconv.Itoa(m.Ref.Position + 1)
	}
	return []interface{}{
		m.Supplier, m.Code, m.ID, order, m.Customer, position,
		m.DisplayQuantity().InexactFloat64(), m.Unit, kind(m), m.Note,
	}
}

func kind(m procurement.Requirement) string {
	switch {
	case m.IsGeneralExpense:
		return "expense"
	case m.IsAdditional:
		return "additional"
	default:
		return m.Bucket.String()
	}
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "failed to write row %d of %s", row, sheet)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
