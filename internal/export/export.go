// Package export renders contribution reports as CSV, XLSX and PDF files.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/contribution/reconcile"
	"github.com/smallbiznis/condopay/internal/contribution/status"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

var ErrUnsupportedFormat = errors.New("unsupported_format")

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Document is what gets exported: a report plus the condominium it belongs to.
type Document struct {
	CondominiumName string
	CondominiumSlug string
	Report          contributiondomain.Report
}

type File struct {
	Name        string
	ContentType string
	Body        io.Reader
	Size        int
}

type Exporter interface {
	Export(ctx context.Context, doc Document, format Format) (File, error)
}

type renderFunc func(ctx context.Context, doc Document) ([]byte, error)

type Params struct {
	fx.In

	Log *zap.Logger
}

type exporter struct {
	log       *zap.Logger
	renderers map[Format]renderFunc
}

func New(p Params) Exporter {
	return &exporter{
		log: p.Log.Named("export"),
		renderers: map[Format]renderFunc{
			FormatCSV:  renderCSV,
			FormatXLSX: renderXLSX,
			FormatPDF:  renderPDF,
		},
	}
}

func (e *exporter) Export(ctx context.Context, doc Document, format Format) (File, error) {
	render, ok := e.renderers[format]
	if !ok {
		return File{}, ErrUnsupportedFormat
	}

	body, err := render(ctx, doc)
	if err != nil {
		obslogger.WithContext(ctx, e.log).Error("render export",
			zap.String("format", string(format)),
			zap.String("condominium_id", doc.Report.CondominiumID.String()),
			zap.Error(err),
		)
		return File{}, fmt.Errorf("render %s: %w", format, err)
	}

	return File{
		Name:        Filename(doc, format),
		ContentType: format.ContentType(),
		Body:        bytes.NewReader(body),
		Size:        len(body),
	}, nil
}

// Filename is contribuicoes-<slug>-<year>.<ext>.
func Filename(doc Document, format Format) string {
	s := doc.CondominiumSlug
	if s == "" {
		s = slug.Make(doc.CondominiumName)
	}
	if s == "" {
		s = doc.Report.CondominiumID.String()
	}
	return fmt.Sprintf("contribuicoes-%s-%d.%s", s, doc.Report.Year, format)
}

var monthLabels = [12]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// StatusLabel is the Portuguese label of a month cell; nil means no payment.
func StatusLabel(cell *contributiondomain.Cell) string {
	if cell == nil {
		return "-"
	}
	switch cell.Status {
	case status.Paid:
		return "Pago"
	case status.Overdue:
		return "Em atraso"
	case status.Pending:
		return "Pendente"
	default:
		return "-"
	}
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func header(year int) []string {
	cols := []string{"Apartamento", "Andar", "Morador"}
	for _, m := range monthLabels {
		cols = append(cols, fmt.Sprintf("%s/%d", m, year))
	}
	return append(cols, "Total pago", "Total em aberto")
}

func floorLabel(floor *string) string {
	if floor == nil {
		return ""
	}
	return *floor
}

// tableRows flattens the report into string rows shared by CSV and PDF.
func tableRows(report contributiondomain.Report) [][]string {
	keys := reconcile.MonthKeys(report.Year)
	out := make([][]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		line := []string{row.ApartmentNumber, floorLabel(row.Floor), row.ResidentName}
		for _, key := range keys {
			line = append(line, StatusLabel(row.Months[key]))
		}
		line = append(line, formatAmount(row.TotalPaid), formatAmount(row.TotalDebt))
		out = append(out, line)
	}
	return out
}

func summaryLines(s contributiondomain.Summary) [][2]string {
	return [][2]string{
		{"Total pago", formatAmount(s.TotalPaid)},
		{"Total em aberto", formatAmount(s.TotalDebt)},
		{"Apartamentos", fmt.Sprintf("%d", s.TotalApartments)},
		{"Ocupação (%)", fmt.Sprintf("%.2f", s.OccupancyRate)},
	}
}
