package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/db"
)

const dateLayout = "2006-01-02"

type HistoryHandler struct{}

func NewHistoryHandler() *HistoryHandler {
	return &HistoryHandler{}
}

type ListHistoryQuery struct {
	State    string `form:"state"`
	FromDate string `form:"from_date"`
	ToDate   string `form:"to_date"`
	Limit    int    `form:"limit" binding:"min=0,max=100"`
	Offset   int    `form:"offset" binding:"min=0"`
}

type HistoryListResponse struct {
	Jobs  []*db.JobRecord `json:"jobs"`
	Count int             `json:"count"`
}

type HistoryDetailResponse struct {
	Job   *db.JobRecord  `json:"job"`
	Audit []*db.AuditLog `json:"audit"`
}

type CountersResponse struct {
	Days       []*db.PrintCounter `json:"days"`
	TotalJobs  int64              `json:"total_jobs"`
	TotalPages int64              `json:"total_pages"`
}

// ListHistory lists the caller's finished jobs, newest first.
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	var q ListHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	filter := db.JobFilter{
		Owner:  middleware.User(c),
		State:  q.State,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.FromDate != "" {
		from, err := time.Parse(dateLayout, q.FromDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_date", Message: "from_date must be YYYY-MM-DD"})
			return
		}
		filter.FromDate = &from
	}
	if q.ToDate != "" {
		to, err := time.Parse(dateLayout, q.ToDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_date", Message: "to_date must be YYYY-MM-DD"})
			return
		}
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.ToDate = &end
	}

	records, err := db.History.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list job history",
		})
		return
	}
	if records == nil {
		records = []*db.JobRecord{}
	}

	c.JSON(http.StatusOK, HistoryListResponse{Jobs: records, Count: len(records)})
}

func (h *HistoryHandler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	record, err := db.History.GetJob(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve job",
		})
		return
	}
	if record.Owner != middleware.User(c) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Job not found"})
		return
	}

	audit, err := db.Audit.ListByJob(ctx, record.JobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve audit log",
		})
		return
	}
	if audit == nil {
		audit = []*db.AuditLog{}
	}

	c.JSON(http.StatusOK, HistoryDetailResponse{Job: record, Audit: audit})
}

// GetCounters reports daily totals between from and to, inclusive. Both
// default to the last seven days.
func (h *HistoryHandler) GetCounters(c *gin.Context) {
	now := time.Now().UTC()
	to := now
	from := now.AddDate(0, 0, -6)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_date", Message: "from must be YYYY-MM-DD"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_date", Message: "to must be YYYY-MM-DD"})
			return
		}
		to = t
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_range", Message: "to is before from"})
		return
	}

	days, err := db.Counters.GetCounters(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve counters",
		})
		return
	}

	resp := CountersResponse{Days: days}
	if resp.Days == nil {
		resp.Days = []*db.PrintCounter{}
	}
	for _, d := range days {
		resp.TotalJobs += d.Jobs
		resp.TotalPages += d.Pages
	}
	c.JSON(http.StatusOK, resp)
}

func RegisterHistoryRoutes(r *gin.RouterGroup, h *HistoryHandler) {
	r.GET("/history", h.ListHistory)
	r.GET("/history/:id", h.GetHistory)
	r.GET("/counters", h.GetCounters)
}
