package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/db"
)

type DashboardStats struct {
	TodayJobs   int64          `json:"today_jobs"`
	TodayPages  int64          `json:"today_pages"`
	PagesTrend  int            `json:"pages_trend"`
	ActiveJobs  int            `json:"active_jobs"`
	ByState     map[string]int `json:"by_state"`
	FailedToday int            `json:"failed_today"`
}

type DashboardData struct {
	Stats   DashboardStats   `json:"stats"`
	Printer core.PrinterInfo `json:"printer"`
}

type DashboardHandler struct {
	jobs    *core.JobManager
	printer *core.PrinterManager
	now     func() time.Time
}

func NewDashboardHandler(jobs *core.JobManager, printer *core.PrinterManager) *DashboardHandler {
	return &DashboardHandler{jobs: jobs, printer: printer, now: time.Now}
}

// Dashboard summarises the whole print desk, not only the caller's jobs.
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, DashboardData{
		Stats:   h.getDashboardStats(c),
		Printer: h.printer.Info(),
	})
}

func (h *DashboardHandler) getDashboardStats(c *gin.Context) DashboardStats {
	stats := DashboardStats{ByState: make(map[string]int)}
	ctx := c.Request.Context()
	now := h.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	var yesterdayPages int64
	if counters, err := db.Counters.GetCounters(ctx, yesterdayStart, todayStart); err == nil {
		for _, day := range counters {
			if day.Date.Equal(todayStart) {
				stats.TodayJobs = day.Jobs
				stats.TodayPages = day.Pages
			} else {
				yesterdayPages = day.Pages
			}
		}
	}

	if yesterdayPages > 0 {
		stats.PagesTrend = int((float64(stats.TodayPages-yesterdayPages) / float64(yesterdayPages)) * 100)
	} else if stats.TodayPages > 0 {
		stats.PagesTrend = 100
	}

	for _, j := range h.jobs.List("") {
		stats.ActiveJobs++
		stats.ByState[j.State().String()]++
	}

	failed, err := db.History.ListJobs(ctx, db.JobFilter{
		State:    core.StateError.String(),
		FromDate: &todayStart,
		Limit:    1000,
	})
	if err == nil {
		stats.FailedToday = len(failed)
	}

	return stats
}

func RegisterDashboardRoutes(r *gin.RouterGroup, h *DashboardHandler) {
	r.GET("/dashboard", h.Dashboard)
}
