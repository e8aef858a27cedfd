package export

import (
	"bytes"
	"context"
	"encoding/csv"
)

func renderCSV(_ context.Context, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	records := [][]string{header(doc.Report.Year)}
	records = append(records, tableRows(doc.Report)...)
	records = append(records, []string{})
	for _, line := range summaryLines(doc.Report.Summary) {
		records = append(records, []string{line[0], line[1]})
	}

	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
