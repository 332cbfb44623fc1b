// Package export renders quotations as spreadsheets and plain text.
package export

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/cotizaciones/internal/pricing"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

// SheetName is the name of the only sheet in an exported workbook.
const SheetName = "Cotización"

// Headers are the exported columns, in order.
var Headers = []string{
	"Item", "Proveedor", "Contacto", "Cantidad", "UOM",
	"Costo EA", "Price EA", "Margen (%)", "Margen Extra", "Total MXN",
}

const totalsLabel = "TOTALES"

// row is one exported line. Numeric cells that are nil are left empty.
type row []any

func productRows(q quotation.Quotation, s pricing.Summary) []row {
	rows := make([]row, 0, len(q.Products)+1)
	for i, p := range q.Products {
		rows = append(rows, row{
			i + 1,
			sanitizeExcelCell(p.Vendor),
			sanitizeExcelCell(p.QuotationContact),
			number(p.AnnualQuantity),
			sanitizeExcelCell(uom(p)),
			number(p.CostPerUnit),
			number(p.UnitPrice),
			number(p.MarginPercent),
			string(p.ExtraMargin),
			number(p.ExtendedFinalPrice),
		})
	}
	rows = append(rows, row{
		totalsLabel,
		"",
		"",
		number(s.TotalQuantity),
		"",
		number(s.AvgCostPerUnit),
		number(s.AvgUnitPrice),
		number(s.AvgMarginPercent),
		"",
		number(s.TotalExtendedFinalPrice),
	})
	return rows
}

// number returns nil for NaN and infinities so they export as empty cells.
func number(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func uom(p quotation.Product) string {
	if p.CustomUOM != "" {
		return p.CustomUOM
	}
	return p.UOM
}

// Workbook builds the .xlsx export of q: one row per product followed by a
// totals row built from s.
func Workbook(q quotation.Quotation, s pricing.Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("set sheet name: %w", err)
	}

	widths := []float64{8, 28, 24, 12, 10, 14, 14, 12, 14, 16}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("column name %d: %w", i+1, err)
		}
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("set col width %s: %w", col, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:  true,
			Color: "#FFFFFF",
			Size:  11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#333333"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: thinBorders(),
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	itemStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Size: 10},
		Border: thinBorders(),
	})
	if err != nil {
		return nil, fmt.Errorf("create item style: %w", err)
	}

	totalsStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 10},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"#EEEEEE"}, Pattern: 1},
		Border: thinBorders(),
	})
	if err != nil {
		return nil, fmt.Errorf("create totals style: %w", err)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(Headers))

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	rows := productRows(q, s)
	for i, r := range rows {
		line := i + 2
		cell := fmt.Sprintf("A%d", line)
		values := []any(r)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", line, err)
		}

		style := itemStyle
		if i == len(rows)-1 {
			style = totalsStyle
		}
		if err := f.SetCellStyle(SheetName, cell, fmt.Sprintf("%s%d", lastCol, line), style); err != nil {
			return nil, fmt.Errorf("style row %d: %w", line, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the download name of the workbook for q.
func Filename(q quotation.Quotation) string {
	return "Cotización_" + safeName(q.QuoteNumber) + ".xlsx"
}

// CSVFilename is the download name of the CSV export for q.
func CSVFilename(q quotation.Quotation) string {
	return "Cotización_" + safeName(q.QuoteNumber) + ".csv"
}

var unsafeNameChars = strings.NewReplacer("/", "-", "\\", "-", "\"", "", "\r", "", "\n", "")

func safeName(s string) string {
	return unsafeNameChars.Replace(strings.TrimSpace(s))
}

// sanitizeExcelCell prevents formula injection by prefixing dangerous leading
// characters with a single quote.
func sanitizeExcelCell(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "top", "bottom", "right"}
	borders := make([]excelize.Border, len(sides))
	for i, side := range sides {
		borders[i] = excelize.Border{
			Type:  side,
			Color: "#000000",
			Style: 1,
		}
	}
	return borders
}
