package db

import (
	"encoding/json"
	"time"
)

type Preference struct {
	User      string    `json:"user"`
	TonerSave bool      `json:"toner_save"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobRecord is the final snapshot of a job that left the active set.
type JobRecord struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	Owner      string    `json:"owner"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Pages      string    `json:"pages"`
	TotalPages int       `json:"total_pages"`
	Copies     int       `json:"copies"`
	PerPage    int       `json:"per_page"`
	Duplex     bool      `json:"duplex"`
	TonerSave  bool      `json:"toner_save"`
	Printed    int       `json:"printed"`
	Expected   int       `json:"expected"`
	Reference  string    `json:"reference,omitempty"`
	Failure    string    `json:"failure,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// PrintCounter totals finished jobs and printed pages for one day.
type PrintCounter struct {
	Date  time.Time `json:"date"`
	Jobs  int64     `json:"jobs"`
	Pages int64     `json:"pages"`
}

// Webhook is a user's subscription to the events of their own jobs.
type Webhook struct {
	ID         int64     `json:"id"`
	Owner      string    `json:"owner"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	EventsJSON string    `json:"events_json"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// Events decodes EventsJSON. A malformed value yields no events.
func (w *Webhook) Events() []string {
	var events []string
	if err := json.Unmarshal([]byte(w.EventsJSON), &events); err != nil {
		return nil
	}
	return events
}

type AuditLog struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	JobID     string    `json:"job_id"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

type JobFilter struct {
	Owner    string
	State    string
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
