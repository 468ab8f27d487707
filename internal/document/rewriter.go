package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFRewriter writes page subsets of PDF documents next to the source file.
type PDFRewriter struct{}

func NewPDFRewriter() *PDFRewriter {
	return &PDFRewriter{}
}

// Keep writes a copy of src that holds only the given 1-based ranges
// ("1-3", "7") and returns its path.
func (r *PDFRewriter) Keep(ctx context.Context, src string, ranges []string) (string, error) {
	if len(ranges) == 0 {
		return "", ErrNoPages
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(filepath.Dir(src), fmt.Sprintf("%s-%s.pdf", base, uuid.NewString()[:8]))

	if err := api.TrimFile(src, out, ranges, newConfig()); err != nil {
		return "", fmt.Errorf("failed to keep pages %s of %s: %w", strings.Join(ranges, ","), src, err)
	}
	return out, nil
}
