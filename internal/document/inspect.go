// Package document prepares uploaded files for printing: it converts them to
// PDF, reads their page geometry and rewrites them to a page subset.
package document

import (
	"errors"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/orrn/printdesk/internal/core"
)

var (
	ErrNotPDF      = errors.New("file is not a PDF document")
	ErrNoPages     = errors.New("document has no pages")
	ErrConversion  = errors.New("document conversion failed")
	ErrUnsupported = errors.New("unsupported document type")
)

func init() {
	// pdfcpu would otherwise create a configuration directory in $HOME.
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Inspect reads the size and rotation of every page of the PDF at path.
func Inspect(path string) ([]core.PageGeometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, newConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	if ctx.PageCount == 0 {
		return nil, ErrNoPages
	}

	geometry := make([]core.PageGeometry, 0, ctx.PageCount)
	for nr := 1; nr <= ctx.PageCount; nr++ {
		_, _, inh, err := ctx.PageDict(nr, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", nr, err)
		}
		if inh == nil {
			return nil, fmt.Errorf("page %d has no attributes", nr)
		}

		box := inh.CropBox
		if box == nil {
			box = inh.MediaBox
		}
		if box == nil {
			return nil, fmt.Errorf("page %d has no media box", nr)
		}
		geometry = append(geometry, core.PageGeometry{
			Width:    box.Width(),
			Height:   box.Height(),
			Rotation: inh.Rotate,
		})
	}
	return geometry, nil
}
