package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"nerdvision/internal/analytics"
)

// WritePDF renders a one document summary: the overview figures followed by
// the summary tables of every available report
func WritePDF(w io.Writer, r *analytics.AnalysisReport, sheets []Sheet) error {
	return buildPDF(r, sheets).Output(w)
}

func buildPDF(r *analytics.AnalysisReport, sheets []Sheet) *gofpdf.Fpdf {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Traffic Comparison Report")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(40, 6, fmt.Sprintf("Current %s, previous %s", r.Periods.Current, r.Periods.Previous))
	pdf.Ln(6)
	pdf.Cell(40, 6, "Generated "+r.GeneratedAt.Format("2006-01-02 15:04"))
	pdf.Ln(10)

	for _, s := range sheets {
		if !summarySheet(s.Name) {
			continue
		}
		writePDFTable(pdf, s)
	}

	if r.Failed() {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 8, "Unavailable reports")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 9)
		for _, name := range r.FailedReports() {
			pdf.MultiCell(0, 5, fmt.Sprintf("%s: %s", name, r.Failures[name]), "", "L", false)
		}
	}

	return pdf
}

func summarySheet(name string) bool {
	switch name {
	case ExecOverview, SpikesSummary, DropsSummary, HighBounceSummary, LowBounceSummary, SourcesSummary:
		return true
	}
	return false
}

func writePDFTable(pdf *gofpdf.Fpdf, s Sheet) {
	const pageWidth = 277.0
	width := pageWidth / float64(len(s.Columns))

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 8, s.Name)
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(224, 224, 224)
	for _, h := range s.Headers() {
		pdf.CellFormat(width, 6, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for i := range s.Rows {
		for _, text := range s.Record(i) {
			pdf.CellFormat(width, 6, text, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)
}
