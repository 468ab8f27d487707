package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/core"
)

const refreshTimeout = 30 * time.Second

type PrinterHandler struct {
	printer *core.PrinterManager
	logger  *slog.Logger
}

func NewPrinterHandler(printer *core.PrinterManager, logger *slog.Logger) *PrinterHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrinterHandler{printer: printer, logger: logger}
}

// GetPrinter reports the printer name, its last known state and the
// options jobs may choose from.
func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	c.JSON(http.StatusOK, h.printer.Info())
}

// RefreshPrinter updates the reported printer state. Layouts and the copy
// limit stay as loaded at startup.
func (h *PrinterHandler) RefreshPrinter(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), refreshTimeout)
	defer cancel()

	if err := h.printer.RefreshState(ctx); err != nil {
		h.logger.Warn("printer refresh failed", "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "printer_unreachable",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.printer.Info())
}

func RegisterPrinterRoutes(r *gin.RouterGroup, h *PrinterHandler) {
	r.GET("/printer", h.GetPrinter)
	r.POST("/printer/refresh", h.RefreshPrinter)
}
