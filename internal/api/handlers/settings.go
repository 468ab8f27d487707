package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/db"
)

type SettingsHandler struct {
	defaultTonerSave bool
}

type SettingsResponse struct {
	User      string `json:"user"`
	TonerSave bool   `json:"toner_save"`
}

type UpdateSettingsRequest struct {
	TonerSave *bool `json:"toner_save" binding:"required"`
}

func NewSettingsHandler(defaultTonerSave bool) *SettingsHandler {
	return &SettingsHandler{defaultTonerSave: defaultTonerSave}
}

// GetSettings returns the caller's preferences. New jobs start from these.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	user := middleware.User(c)
	on, err := db.Preferences.GetTonerSave(c.Request.Context(), user, h.defaultTonerSave)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to load settings",
		})
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{User: user, TonerSave: on})
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	user := middleware.User(c)
	if err := db.Preferences.SetTonerSave(c.Request.Context(), user, *req.TonerSave); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update settings",
		})
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{User: user, TonerSave: *req.TonerSave})
}

func RegisterSettingsRoutes(r *gin.RouterGroup, h *SettingsHandler) {
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)
}
