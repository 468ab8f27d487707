package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/db"
	"github.com/orrn/printdesk/internal/webhook"
)

// Deliverer sends a single webhook payload.
type Deliverer interface {
	Send(ctx context.Context, hook *db.Webhook, event webhook.WebhookEvent, data interface{}) error
}

// WebhookHandler manages the caller's subscriptions to events of their own
// jobs.
type WebhookHandler struct {
	deliverer Deliverer
}

type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required,url"`
	Secret string   `json:"secret"`
	Events []string `json:"events" binding:"required,min=1"`
}

type UpdateWebhookRequest struct {
	URL     string   `json:"url" binding:"omitempty,url"`
	Secret  *string  `json:"secret"`
	Events  []string `json:"events"`
	Enabled *bool    `json:"enabled"`
}

type WebhookResponse struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Signed    bool      `json:"signed"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

type TestWebhookResponse struct {
	Success bool   `json:"success"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

func NewWebhookHandler(deliverer Deliverer) *WebhookHandler {
	return &WebhookHandler{deliverer: deliverer}
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	hooks, err := db.Webhooks.ListWebhooks(c.Request.Context(), middleware.User(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve webhooks",
		})
		return
	}

	responses := make([]WebhookResponse, 0, len(hooks))
	for _, w := range hooks {
		responses = append(responses, webhookResponse(w))
	}
	c.JSON(http.StatusOK, responses)
}

func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	eventsJSON, ok := encodeEvents(c, req.Events)
	if !ok {
		return
	}

	w := &db.Webhook{
		Owner:      middleware.User(c),
		URL:        req.URL,
		Secret:     req.Secret,
		EventsJSON: eventsJSON,
		Enabled:    true,
	}
	if err := db.Webhooks.CreateWebhook(c.Request.Context(), w); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create webhook",
		})
		return
	}

	c.JSON(http.StatusCreated, webhookResponse(w))
}

// UpdateWebhook changes only the supplied fields. An empty secret turns
// signing off.
func (h *WebhookHandler) UpdateWebhook(c *gin.Context) {
	w, ok := h.owned(c)
	if !ok {
		return
	}

	var req UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if req.URL != "" {
		w.URL = req.URL
	}
	if req.Secret != nil {
		w.Secret = *req.Secret
	}
	if req.Events != nil {
		eventsJSON, ok := encodeEvents(c, req.Events)
		if !ok {
			return
		}
		w.EventsJSON = eventsJSON
	}
	if req.Enabled != nil {
		w.Enabled = *req.Enabled
	}

	if err := db.Webhooks.UpdateWebhook(c.Request.Context(), w); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update webhook",
		})
		return
	}

	c.JSON(http.StatusOK, webhookResponse(w))
}

func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	w, ok := h.owned(c)
	if !ok {
		return
	}

	if err := db.Webhooks.DeleteWebhook(c.Request.Context(), w.ID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete webhook",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// TestWebhook sends a sample job event for the first event the webhook
// subscribes to. Delivery failures are reported in the body, not the status.
func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	w, ok := h.owned(c)
	if !ok {
		return
	}

	event := webhook.EventJobCompleted
	if events := w.Events(); len(events) > 0 {
		event = webhook.WebhookEvent(events[0])
	}

	data := webhook.SampleEventData(event, w.Owner)
	if err := h.deliverer.Send(c.Request.Context(), w, event, data); err != nil {
		c.JSON(http.StatusOK, TestWebhookResponse{
			Success: false,
			Event:   string(event),
			Message: fmt.Sprintf("Delivery failed: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, TestWebhookResponse{
		Success: true,
		Event:   string(event),
		Message: "Sample event delivered",
	})
}

// owned loads the :id webhook. Webhooks of other users are reported as
// missing.
func (h *WebhookHandler) owned(c *gin.Context) (*db.Webhook, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid webhook ID",
		})
		return nil, false
	}

	w, err := db.Webhooks.GetWebhookByID(c.Request.Context(), id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve webhook",
		})
		return nil, false
	}
	if err != nil || w.Owner != middleware.User(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Webhook not found",
		})
		return nil, false
	}
	return w, true
}

// encodeEvents validates and de-duplicates events, writing a 400 when one is
// unknown or none are given.
func encodeEvents(c *gin.Context, events []string) (string, bool) {
	seen := make(map[string]bool, len(events))
	var unique []string
	for _, e := range events {
		if !webhook.IsEvent(e) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_event",
				Message: fmt.Sprintf("Invalid event type: %s", e),
			})
			return "", false
		}
		if !seen[e] {
			seen[e] = true
			unique = append(unique, e)
		}
	}
	if len(unique) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "At least one event must be specified",
		})
		return "", false
	}

	data, err := json.Marshal(unique)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "json_error",
			Message: "Failed to serialize events",
		})
		return "", false
	}
	return string(data), true
}

func webhookResponse(w *db.Webhook) WebhookResponse {
	events := w.Events()
	if events == nil {
		events = []string{}
	}
	return WebhookResponse{
		ID:        w.ID,
		URL:       w.URL,
		Events:    events,
		Signed:    w.Secret != "",
		Enabled:   w.Enabled,
		CreatedAt: w.CreatedAt,
	}
}

func RegisterWebhookRoutes(r *gin.RouterGroup, h *WebhookHandler) {
	r.GET("/webhooks", h.ListWebhooks)
	r.POST("/webhooks", h.CreateWebhook)
	r.PATCH("/webhooks/:id", h.UpdateWebhook)
	r.DELETE("/webhooks/:id", h.DeleteWebhook)
	r.POST("/webhooks/:id/test", h.TestWebhook)
}
