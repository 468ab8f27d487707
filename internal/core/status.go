package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/orrn/printdesk/internal/pages"
)

const progressCells = 10

// View is a consistent snapshot of a job for status rendering.
type View struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Pages       string    `json:"pages"`
	PageRanges  string    `json:"page_ranges"`
	TotalPages  int       `json:"total_pages"`
	Selected    int       `json:"selected_pages"`
	Sheets      int       `json:"sheets"`
	Copies      int       `json:"copies"`
	Duplex      bool      `json:"duplex"`
	TonerSave   bool      `json:"toner_save"`
	PerPage     int       `json:"per_page"`
	Orientation string    `json:"orientation"`
	Converted   bool      `json:"converted"`
	Progress    *int      `json:"progress,omitempty"`
	Expected    int       `json:"expected"`
	ProgressBar string    `json:"progress_bar,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Failure     string    `json:"-"`
	Caption     bool      `json:"caption_has_ranges"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (j *Job) View() View {
	j.mu.Lock()
	defer j.mu.Unlock()

	v := View{
		ID:          j.id,
		Owner:       j.owner,
		Name:        j.doc.Name,
		State:       j.state.String(),
		Pages:       j.pages.String(),
		PageRanges:  j.pages.Compact(),
		TotalPages:  j.pages.Total(),
		Selected:    j.pages.Count(),
		Sheets:      j.pages.ToPrint(),
		Copies:      j.copies,
		Duplex:      j.duplex,
		TonerSave:   j.tonerSave,
		PerPage:     j.pages.PerPage(),
		Orientation: j.orientation.String(),
		Converted:   j.doc.Converted,
		Expected:    j.expectedTotal(),
		Reference:   j.reference,
		Failure:     j.failure,
		Caption:     pages.HasRanges(j.caption),
		CreatedAt:   j.createdAt,
	}
	if j.started {
		p := j.progress
		v.Progress = &p
		v.ProgressBar = ProgressBar(j.progress, v.Expected)
	}
	v.Status = j.statusText(v)
	return v
}

// ProgressBar renders a fixed-width bar followed by "done/total".
func ProgressBar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = (done*progressCells + total - 1) / total
	}
	filled = min(max(filled, 0), progressCells)
	return strings.Repeat("▓", filled) + strings.Repeat("░", progressCells-filled) +
		fmt.Sprintf(" %d/%d", done, total)
}

func plural(n int, many, one string) string {
	if n == 1 {
		return one
	}
	return many
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func (j *Job) statusText(v View) string {
	var b strings.Builder
	if v.Name != "" {
		b.WriteString(v.Name + "\n")
	}
	fmt.Fprintf(&b, "%d cop%s, pages %s\n", v.Copies, plural(v.Copies, "ies", "y"), v.Pages)
	fmt.Fprintf(&b, "Toner-save is %s\n", onOff(v.TonerSave))
	if v.TotalPages > 1 {
		if v.Duplex {
			b.WriteString("Printing on both sides of the page\n")
		} else {
			b.WriteString("Printing on only one side of the page\n")
		}
		fmt.Fprintf(&b, "%d document page%s per 1 physical page\n", v.PerPage, plural(v.PerPage, "s", ""))
	}

	switch j.state {
	case StateSent:
		b.WriteString("Sent to printing!")
	case StateInProgress:
		b.WriteString("Printing: " + v.ProgressBar)
	case StateDone:
		b.WriteString("Printed!")
	case StateCanceled:
		b.WriteString("Canceled.")
	case StateExpired:
		b.WriteString("Expired. Send the file again to print it.")
	case StateError:
		b.WriteString("Something went wrong while printing.")
	}
	return strings.TrimRight(b.String(), "\n")
}
