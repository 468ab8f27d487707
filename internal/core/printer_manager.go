package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orrn/printdesk/internal/layout"
)

const defaultMaxCopies = 10

// Capabilities is what the printer reports about itself.
type Capabilities struct {
	Name      string
	State     string
	NumberUp  []int
	MaxCopies int
}

// CapabilitySource queries the printer.
type CapabilitySource interface {
	Capabilities(ctx context.Context) (Capabilities, error)
}

// PrinterInfo is the printer as offered to users.
type PrinterInfo struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	NumberUp  []int  `json:"number_up"`
	MaxCopies int    `json:"max_copies"`
}

// PrinterManager holds the printer capabilities. They are loaded once at
// startup and treated as constant afterwards.
type PrinterManager struct {
	source    CapabilitySource
	limit     int
	logger    *slog.Logger
	mu        sync.RWMutex
	caps      Capabilities
	catalog   *layout.Catalog
	maxCopies int
	loaded    bool
}

// NewPrinterManager creates a manager that offers 1-up printing and the
// configured copy limit until Load succeeds.
func NewPrinterManager(source CapabilitySource, maxCopies int, logger *slog.Logger) *PrinterManager {
	if maxCopies <= 0 {
		maxCopies = defaultMaxCopies
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PrinterManager{
		source:    source,
		limit:     maxCopies,
		logger:    logger,
		catalog:   layout.Default().Intersect(nil),
		maxCopies: maxCopies,
	}
}

// Load queries the printer and intersects its N-up support with the layout
// catalog. On error the fallback capabilities stay in place. Only the first
// call queries the printer; later calls are no-ops.
func (pm *PrinterManager) Load(ctx context.Context) error {
	pm.mu.Lock()
	first := !pm.loaded
	pm.loaded = true
	pm.mu.Unlock()
	if !first || pm.source == nil {
		return nil
	}
	caps, err := pm.source.Capabilities(ctx)
	if err != nil {
		return fmt.Errorf("failed to query printer capabilities: %w", err)
	}

	catalog := layout.Default().Intersect(caps.NumberUp)
	maxCopies := pm.limit
	if caps.MaxCopies > 0 && caps.MaxCopies < maxCopies {
		maxCopies = caps.MaxCopies
	}

	pm.mu.Lock()
	pm.caps = caps
	pm.catalog = catalog
	pm.maxCopies = maxCopies
	pm.mu.Unlock()

	pm.logger.Info("printer capabilities loaded",
		"printer", caps.Name, "state", caps.State,
		"number_up", catalog.Factors(), "max_copies", maxCopies)
	return nil
}

// RefreshState queries the printer again and updates only its reported
// state. Layouts and the copy limit keep the values of Load.
func (pm *PrinterManager) RefreshState(ctx context.Context) error {
	if pm.source == nil {
		return nil
	}
	caps, err := pm.source.Capabilities(ctx)
	if err != nil {
		return fmt.Errorf("failed to query printer state: %w", err)
	}

	pm.mu.Lock()
	pm.caps.State = caps.State
	if pm.caps.Name == "" {
		pm.caps.Name = caps.Name
	}
	pm.mu.Unlock()
	return nil
}

func (pm *PrinterManager) Catalog() *layout.Catalog {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.catalog
}

func (pm *PrinterManager) MaxCopies() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.maxCopies
}

func (pm *PrinterManager) Info() PrinterInfo {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return PrinterInfo{
		Name:      pm.caps.Name,
		State:     pm.caps.State,
		NumberUp:  pm.catalog.Factors(),
		MaxCopies: pm.maxCopies,
	}
}
