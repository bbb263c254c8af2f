package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 277.0
	minColWidth = 18.0
)

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType is the MIME type of the rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render creates a PDF document with the dataset title and table body.
// Column widths follow the longest cell in each column.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	widths := columnWidths(pdf, data)
	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if data.Title != "" {
			pdf.SetFont("Arial", "B", 13)
			pdf.CellFormat(0, 9, tr(data.Title), "", 1, "L", false, 0, "")
		}
		header()
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	for _, row := range data.Rows {
		for i := range data.Headers {
			pdf.CellFormat(widths[i], 6, tr(data.cell(row, i)), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(pdf *gofpdf.Fpdf, data Dataset) []float64 {
	pdf.SetFont("Arial", "", 8)
	widths := make([]float64, len(data.Headers))
	total := 0.0
	for i, h := range data.Headers {
		w := pdf.GetStringWidth(h) + 4
		for _, row := range data.Rows {
			if cw := pdf.GetStringWidth(data.cell(row, i)) + 4; cw > w {
				w = cw
			}
		}
		if w < minColWidth {
			w = minColWidth
		}
		widths[i] = w
		total += w
	}
	scale := pageWidth / total
	for i := range widths {
		widths[i] *= scale
	}
	return widths
}
