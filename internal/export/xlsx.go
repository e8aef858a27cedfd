package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/smallbiznis/condopay/internal/contribution/reconcile"
	"github.com/smallbiznis/condopay/internal/contribution/status"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Contribuições"

func renderXLSX(_ context.Context, doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, err
	}

	cols := header(doc.Report.Year)
	for i, h := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, styles.header); err != nil {
		return nil, err
	}

	keys := reconcile.MonthKeys(doc.Report.Year)
	for i, row := range doc.Report.Rows {
		r := i + 2
		values := []any{row.ApartmentNumber, floorLabel(row.Floor), row.ResidentName}
		for _, key := range keys {
			values = append(values, StatusLabel(row.Months[key]))
		}
		values = append(values, row.TotalPaid.InexactFloat64(), row.TotalDebt.InexactFloat64())

		start, _ := excelize.CoordinatesToCellName(1, r)
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return nil, err
		}

		for m, key := range keys {
			cell := row.Months[key]
			if cell == nil {
				continue
			}
			name, _ := excelize.CoordinatesToCellName(4+m, r)
			if style, ok := styles.status[cell.Status]; ok {
				if err := f.SetCellStyle(sheetName, name, name, style); err != nil {
					return nil, err
				}
			}
		}
		paid, _ := excelize.CoordinatesToCellName(len(cols)-1, r)
		debt, _ := excelize.CoordinatesToCellName(len(cols), r)
		if err := f.SetCellStyle(sheetName, paid, debt, styles.amount); err != nil {
			return nil, err
		}
	}

	r := len(doc.Report.Rows) + 3
	for _, line := range summaryLines(doc.Report.Summary) {
		if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", r), line[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, fmt.Sprintf("C%d", r), line[1]); err != nil {
			return nil, err
		}
		r++
	}

	if err := f.SetColWidth(sheetName, "C", "C", 28); err != nil {
		return nil, err
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      3,
		YSplit:      1,
		TopLeftCell: "D2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type sheetStyles struct {
	header int
	amount int
	status map[status.Status]int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	var (
		s   = sheetStyles{status: make(map[status.Status]int)}
		err error
	)
	s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9D9D9"}},
	})
	if err != nil {
		return s, err
	}
	amountFormat := "0.00"
	s.amount, err = f.NewStyle(&excelize.Style{CustomNumFmt: &amountFormat})
	if err != nil {
		return s, err
	}
	for st, color := range map[status.Status]string{
		status.Paid:    "C6EFCE",
		status.Overdue: "FFC7CE",
		status.Pending: "FFEB9C",
	} {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return s, err
		}
		s.status[st] = id
	}
	return s, nil
}
