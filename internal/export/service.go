package export

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"nerdvision/internal/analytics"
)

// Workbook and summary file names written next to the CSV files
const (
	WorkbookFile = "report.xlsx"
	SummaryFile  = "report.pdf"
)

// Files lists the paths written by an export
type Files struct {
	CSV      []string
	Workbook string
	Summary  string
}

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// ExportAll writes the CSV files, the workbook and the PDF summary into dir
func (s *Service) ExportAll(dir string, r *analytics.AnalysisReport) (*Files, error) {
	sheets := Sheets(r)

	csvPaths, err := WriteCSVFiles(dir, sheets)
	if err != nil {
		return nil, err
	}
	files := &Files{CSV: csvPaths}

	files.Workbook = filepath.Join(dir, WorkbookFile)
	if err := writeFile(files.Workbook, func(w io.Writer) error { return WriteXLSX(w, sheets) }); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	files.Summary = filepath.Join(dir, SummaryFile)
	if err := writeFile(files.Summary, func(w io.Writer) error { return WritePDF(w, r, sheets) }); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}

	s.logger.Info("Report exported",
		slog.String("directory", dir),
		slog.Int("tables", len(sheets)),
		slog.Int("failed_reports", len(r.Failures)))

	return files, nil
}
