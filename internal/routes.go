package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"nerdvision/internal/config"
	"nerdvision/internal/http"
)

// publicCORSConfig lets dashboards on other origins read the report API
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization",
}

// NewRouteMounter binds the report handlers to a cartridge route mount function
func NewRouteMounter(h *http.Handlers) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		MountAppRoutes(srv, h)
	}
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server, h *http.Handlers) {
	cfg := config.GetConfig()

	// Rate limiting would interfere with tests, so it only applies in production
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// A refresh runs every report against the data source
	refreshRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(6),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	apiConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: publicCORSConfig,
	}

	refreshConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{refreshRateLimiter},
	}

	// Health check endpoint
	srv.Get("/_health", h.HealthIndexAction)
	srv.Head("/_health", h.HealthIndexAction)

	// === REPORT API ===
	srv.Get("/api/v1/report", h.ReportIndexAction, apiConfig)
	srv.Get("/api/v1/report/workbook.xlsx", h.ReportWorkbookAction, apiConfig)
	srv.Get("/api/v1/report/export/:table", h.ReportExportAction, apiConfig)
	srv.Get("/api/v1/report/:name", h.ReportShowAction, apiConfig)
	srv.Options("/api/v1/report/*", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, apiConfig)

	srv.Post("/api/v1/report/refresh", h.ReportRefreshAction, refreshConfig)
}
