package export

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// Apartment, floor, resident (2), twelve months, paid, debt.
const pdfGridSize = 18

func renderPDF(_ context.Context, doc Document) ([]byte, error) {
	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		WithMaxGridSize(pdfGridSize).
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := doc.CondominiumName
	if title == "" {
		title = doc.Report.CondominiumID.String()
	}
	m.AddRow(12,
		text.NewCol(pdfGridSize, fmt.Sprintf("Contribuições %d - %s", doc.Report.Year, title), props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	headerProps := props.Text{Style: fontstyle.Bold, Size: 7, Align: align.Center}
	cellProps := props.Text{Size: 7, Align: align.Center}

	m.AddRow(8, tableCols(header(doc.Report.Year), headerProps)...)
	for _, line := range tableRows(doc.Report) {
		m.AddRow(6, tableCols(line, cellProps)...)
	}

	m.AddRow(6, col.New(pdfGridSize))
	for _, line := range summaryLines(doc.Report.Summary) {
		m.AddRow(6,
			text.NewCol(4, line[0], props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(3, line[1], props.Text{Size: 9, Align: align.Right}),
			col.New(pdfGridSize-7),
		)
	}

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return generated.GetBytes(), nil
}

// tableCols lays out one table line; the resident name takes two grid units.
func tableCols(values []string, p props.Text) []core.Col {
	cols := make([]core.Col, 0, len(values))
	for i, v := range values {
		size := 1
		if i == 2 {
			size = 2
		}
		cols = append(cols, text.NewCol(size, v, p))
	}
	return cols
}
