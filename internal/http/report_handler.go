package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"nerdvision/internal/analytics"
	"nerdvision/internal/export"
	"nerdvision/internal/jobs"
)

// Refresher rebuilds the cached report on demand
type Refresher interface {
	RefreshNow() error
}

// Handlers serve the cached analysis report
type Handlers struct {
	cache     *jobs.ReportCache
	refresher Refresher
	logger    *slog.Logger
}

func NewHandlers(cache *jobs.ReportCache, refresher Refresher, logger *slog.Logger) *Handlers {
	return &Handlers{
		cache:     cache,
		refresher: refresher,
		logger:    logger,
	}
}

const lastModifiedLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

type errorResponse struct {
	Error string `json:"error"`
}

// currentReport writes a 503 and returns a nil report when nothing is cached
func (h *Handlers) currentReport(c *fiber.Ctx) (*analytics.AnalysisReport, error) {
	report, at := h.cache.Get()
	if report == nil {
		return nil, c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: "report is not ready yet"})
	}
	c.Set(fiber.HeaderLastModified, at.UTC().Format(lastModifiedLayout))
	return report, nil
}

func (h *Handlers) showReport(c *fiber.Ctx) error {
	report, err := h.currentReport(c)
	if report == nil {
		return err
	}
	return c.JSON(report)
}

func (h *Handlers) showSection(c *fiber.Ctx) error {
	report, err := h.currentReport(c)
	if report == nil {
		return err
	}

	name := c.Params("name")
	var section any
	switch name {
	case analytics.ReportOverview:
		section = report.Overview
	case analytics.ReportTraffic:
		section = report.Traffic
	case analytics.ReportBounce:
		section = report.Bounce
	case analytics.ReportSources:
		section = report.Sources
	default:
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: fmt.Sprintf("unknown report %q", name)})
	}

	if failure, ok := report.Failures[name]; ok {
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: failure})
	}
	return c.JSON(section)
}

func (h *Handlers) exportTable(c *fiber.Ctx) error {
	report, err := h.currentReport(c)
	if report == nil {
		return err
	}

	name := strings.TrimSuffix(c.Params("table"), ".csv")
	for _, sheet := range export.Sheets(report) {
		if sheet.Name != name {
			continue
		}
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, sheet); err != nil {
			h.logger.Error("Failed to render CSV", slog.String("table", name), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "export failed"})
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name+".csv"))
		return c.Send(buf.Bytes())
	}
	return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: fmt.Sprintf("unknown table %q", name)})
}

func (h *Handlers) exportWorkbook(c *fiber.Ctx) error {
	report, err := h.currentReport(c)
	if report == nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, export.Sheets(report)); err != nil {
		h.logger.Error("Failed to render workbook", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "export failed"})
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.WorkbookFile))
	return c.Send(buf.Bytes())
}

func (h *Handlers) refresh(c *fiber.Ctx) error {
	if h.refresher == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(errorResponse{Error: "refresh is disabled"})
	}
	if err := h.refresher.RefreshNow(); err != nil {
		h.logger.Error("Manual refresh failed", slog.Any("error", err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: err.Error()})
	}
	return h.showReport(c)
}

// ReportIndexAction returns the whole cached report
func (h *Handlers) ReportIndexAction(ctx *cartridge.Context) error {
	return h.showReport(ctx.Ctx)
}

// ReportShowAction returns one report by name
func (h *Handlers) ReportShowAction(ctx *cartridge.Context) error {
	return h.showSection(ctx.Ctx)
}

// ReportExportAction downloads one table as CSV
func (h *Handlers) ReportExportAction(ctx *cartridge.Context) error {
	return h.exportTable(ctx.Ctx)
}

// ReportWorkbookAction downloads every table as an XLSX workbook
func (h *Handlers) ReportWorkbookAction(ctx *cartridge.Context) error {
	return h.exportWorkbook(ctx.Ctx)
}

// ReportRefreshAction rebuilds the report and returns it
func (h *Handlers) ReportRefreshAction(ctx *cartridge.Context) error {
	return h.refresh(ctx.Ctx)
}
