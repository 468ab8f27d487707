// Package notify feeds print system notifications into the reconciler.
package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/orrn/printdesk/internal/events"
)

// Handler receives parsed notifications. events.Reconciler implements it.
type Handler interface {
	Handle(n events.Notification) bool
}

// ParseLine splits a line into title and body on the first TAB.
func ParseLine(line string) events.Notification {
	line = strings.TrimRight(line, "\r\n")
	title, text, _ := strings.Cut(line, "\t")
	return events.Notification{Title: title, Text: text}
}

// ReadLines delivers every non-empty line of r to h until r is exhausted or
// ctx is canceled.
func ReadLines(ctx context.Context, r io.Reader, h Handler) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		h.Handle(ParseLine(line))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read notifications: %w", err)
	}
	return nil
}
