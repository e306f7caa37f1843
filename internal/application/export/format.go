package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/debt"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet holding the rows of an XLSX export
const SheetName = "Deudas"

// ParseFormat resolves a format name. Empty means CSV and "excel" is accepted for XLSX.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unsupported export format %q", s))
}

// ContentType of files in format f
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Row is the flattened form of a debt written to every format
type Row struct {
	ID             string  `json:"id"`
	Reference      string  `json:"reference"`
	DebtorName     string  `json:"debtor_name"`
	DebtorEmail    string  `json:"debtor_email"`
	CompanyName    string  `json:"company_name"`
	OriginalAmount string  `json:"original_amount"`
	CurrentAmount  string  `json:"current_amount"`
	AmountDisplay  string  `json:"amount_display"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	DueDate        *string `json:"due_date"`
	CreatedAt      string  `json:"created_at"`
}

var header = []string{
	"id", "reference", "debtor_name", "debtor_email", "company_name",
	"original_amount", "current_amount", "amount_display", "currency",
	"status", "due_date", "created_at",
}

// NewRow flattens d
func NewRow(d debt.Debt) Row {
	currency := d.Currency
	if currency == "" {
		currency = shared.DefaultCurrency
	}
	r := Row{
		ID:             d.ID.String(),
		Reference:      d.Reference,
		DebtorName:     d.DebtorName,
		DebtorEmail:    d.DebtorEmail,
		CompanyName:    d.CompanyName,
		OriginalAmount: d.OriginalAmount.StringFixed(currency.Scale()),
		CurrentAmount:  d.CurrentAmount.StringFixed(currency.Scale()),
		AmountDisplay:  shared.FormatAmount(d.CurrentAmount, currency),
		Currency:       string(currency),
		Status:         string(d.Status),
		CreatedAt:      d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.DueDate != nil {
		due := d.DueDate.Format(time.DateOnly)
		r.DueDate = &due
	}
	return r
}

func (r Row) values() []string {
	due := ""
	if r.DueDate != nil {
		due = *r.DueDate
	}
	return []string{
		r.ID, cellText(r.Reference), cellText(r.DebtorName), cellText(r.DebtorEmail), cellText(r.CompanyName),
		r.OriginalAmount, r.CurrentAmount, r.AmountDisplay, r.Currency,
		r.Status, due, r.CreatedAt,
	}
}

// cellText prefixes user supplied text that a spreadsheet would read as a formula
func cellText(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

func encode(format Format, rows []Row) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(rows)
	case FormatJSON:
		return encodeJSON(rows)
	case FormatXLSX:
		return encodeXLSX(rows)
	}
	return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unsupported export format %q", format))
}

func encodeCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r.values()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeJSON(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	return json.MarshalIndent(rows, "", "  ")
}

func encodeXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return nil, err
	}

	for i, r := range rows {
		for j, v := range r.values() {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(SheetName, "A", lastCol, 20); err != nil {
		return nil, err
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
