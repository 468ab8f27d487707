package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/db"
	"github.com/orrn/printdesk/internal/document"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Ingester turns an upload into a printable document.
type Ingester interface {
	Ingest(ctx context.Context, name string, r io.Reader) (core.Document, error)
}

type JobHandler struct {
	jobs             *core.JobManager
	ingester         Ingester
	maxUpload        int64
	defaultTonerSave bool
	logger           *slog.Logger
}

type JobHandlerConfig struct {
	Jobs             *core.JobManager
	Ingester         Ingester
	MaxUploadBytes   int64
	DefaultTonerSave bool
	Logger           *slog.Logger
}

type PagesRequest struct {
	Action string `json:"action" binding:"required,oneof=add remove all none no_title caption"`
	Ranges string `json:"ranges"`
}

type PagesResponse struct {
	Changed bool      `json:"changed"`
	Job     core.View `json:"job"`
}

type UpdateOptionsRequest struct {
	Copies    *int  `json:"copies"`
	Duplex    *bool `json:"duplex"`
	TonerSave *bool `json:"toner_save"`
	PerPage   *int  `json:"per_page"`
}

type OptionsResponse struct {
	Options map[string]string `json:"options"`
}

func NewJobHandler(cfg JobHandlerConfig) *JobHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &JobHandler{
		jobs:             cfg.Jobs,
		ingester:         cfg.Ingester,
		maxUpload:        cfg.MaxUploadBytes,
		defaultTonerSave: cfg.DefaultTonerSave,
		logger:           cfg.Logger,
	}
}

// CreateJob accepts a multipart upload in the "file" field and an optional
// "caption" holding page ranges.
func (h *JobHandler) CreateJob(c *gin.Context) {
	user := middleware.User(c)
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "too_large",
				Message: fmt.Sprintf("Uploads are limited to %d MB", h.maxUpload>>20),
			})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "A document is required in the file field",
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "upload_error",
			Message: "Failed to read the uploaded document",
		})
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	doc, err := h.ingester.Ingest(ctx, filepath.Base(fh.Filename), f)
	if err != nil {
		h.logger.Warn("failed to ingest upload", "user", user, "name", fh.Filename, "error", err)
		respondIngestError(c, err)
		return
	}

	tonerSave, err := db.Preferences.GetTonerSave(ctx, user, h.defaultTonerSave)
	if err != nil {
		h.logger.Warn("failed to load preferences", "user", user, "error", err)
		tonerSave = h.defaultTonerSave
	}

	job := h.jobs.Create(doc, core.CreateOptions{
		Owner:     user,
		Caption:   c.PostForm("caption"),
		TonerSave: tonerSave,
	})
	h.audit(c, "job.created", job.ID(), doc.Name)

	c.JSON(http.StatusCreated, job.View())
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs := h.jobs.List(middleware.User(c))
	views := make([]core.View, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	c.JSON(http.StatusOK, views)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job.View())
}

func (h *JobHandler) UpdatePages(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}

	var req PagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	changed := true
	var err error
	switch req.Action {
	case "add":
		changed, err = job.AddPages(req.Ranges)
	case "remove":
		changed, err = job.RemovePages(req.Ranges)
	case "all":
		err = job.SelectAll()
	case "none":
		err = job.SelectNone()
	case "no_title":
		err = job.ExcludeTitle()
	case "caption":
		err = job.UseCaption()
	}
	if err != nil {
		respondJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, PagesResponse{Changed: changed, Job: job.View()})
}

// UpdateOptions applies every supplied field in order and stops at the first
// rejected one.
func (h *JobHandler) UpdateOptions(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}

	var req UpdateOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	var steps []func() error
	if req.Copies != nil {
		steps = append(steps, func() error { return job.SetCopies(*req.Copies) })
	}
	if req.Duplex != nil {
		steps = append(steps, func() error { return job.SetDuplex(*req.Duplex) })
	}
	if req.TonerSave != nil {
		steps = append(steps, func() error { return job.SetTonerSave(*req.TonerSave) })
	}
	if req.PerPage != nil {
		steps = append(steps, func() error { return job.SetPerPage(*req.PerPage) })
	}
	for _, step := range steps {
		if err := step(); err != nil {
			respondJobError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, job.View())
}

func (h *JobHandler) GetOptions(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	opts, err := job.Options()
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, OptionsResponse{Options: opts})
}

func (h *JobHandler) SubmitJob(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := job.Submit(c.Request.Context()); err != nil {
		h.logger.Warn("job submission failed", "job_id", job.ID(), "error", err)
		respondJobError(c, err)
		return
	}
	h.audit(c, "job.submitted", job.ID(), job.Reference())
	c.JSON(http.StatusAccepted, job.View())
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := job.Cancel(c.Request.Context()); err != nil {
		respondJobError(c, err)
		return
	}
	h.audit(c, "job.canceled", job.ID(), "")
	c.JSON(http.StatusOK, job.View())
}

// Preview downloads the document the job will print, after any conversion.
func (h *JobHandler) Preview(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	doc := job.Document()
	name := strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name)) + ".pdf"
	c.FileAttachment(doc.Path, name)
}

// lookup resolves the :id parameter to a job owned by the caller. Jobs of
// other users are reported as missing.
func (h *JobHandler) lookup(c *gin.Context) (*core.Job, bool) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil || job.Owner() != middleware.User(c) {
		respondJobError(c, core.ErrJobNotFound)
		return nil, false
	}
	return job, true
}

func (h *JobHandler) audit(c *gin.Context, action, jobID, details string) {
	entry := &db.AuditLog{
		Action:    action,
		User:      middleware.User(c),
		JobID:     jobID,
		Details:   details,
		IPAddress: c.ClientIP(),
	}
	if err := db.Audit.CreateAuditLog(c.Request.Context(), entry); err != nil {
		h.logger.Warn("failed to write audit log", "action", action, "job_id", jobID, "error", err)
	}
}

func respondJobError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrNotEditable):
		status, code = http.StatusConflict, "not_editable"
	case errors.Is(err, core.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, core.ErrEmptySelection):
		status, code = http.StatusConflict, "empty_selection"
	case errors.Is(err, core.ErrNoRanges):
		status, code = http.StatusBadRequest, "no_ranges"
	case errors.Is(err, core.ErrInvalidCopies):
		status, code = http.StatusBadRequest, "invalid_copies"
	case errors.Is(err, core.ErrUnsupportedLayout):
		status, code = http.StatusBadRequest, "unsupported_layout"
	case errors.Is(err, core.ErrDuplexNotApplicable):
		status, code = http.StatusBadRequest, "duplex_not_applicable"
	case errors.Is(err, core.ErrSubmissionFailed):
		status, code = http.StatusBadGateway, "submission_failed"
	}
	c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

func respondIngestError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "too_large", Message: err.Error()})
	case errors.Is(err, document.ErrUnsupported):
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Error: "unsupported_document", Message: err.Error()})
	case errors.Is(err, document.ErrNotPDF), errors.Is(err, document.ErrNoPages):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid_document", Message: err.Error()})
	case errors.Is(err, document.ErrConversion):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "conversion_failed", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to store the document"})
	}
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.POST("/jobs", h.CreateJob)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/:id/pages", h.UpdatePages)
	r.GET("/jobs/:id/options", h.GetOptions)
	r.PATCH("/jobs/:id/options", h.UpdateOptions)
	r.POST("/jobs/:id/submit", h.SubmitJob)
	r.POST("/jobs/:id/cancel", h.CancelJob)
	r.GET("/jobs/:id/preview", h.Preview)
}
