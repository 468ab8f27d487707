package document

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultConvertTimeout = 2 * time.Minute

// Converter turns office documents into PDF with a headless LibreOffice.
type Converter struct {
	binary  string
	timeout time.Duration
}

func NewConverter(binary string, timeout time.Duration) *Converter {
	if binary == "" {
		binary = "soffice"
	}
	if timeout <= 0 {
		timeout = defaultConvertTimeout
	}
	return &Converter{binary: binary, timeout: timeout}
}

// Available checks that the converter binary can be found.
func (c *Converter) Available() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", c.binary, err)
	}
	return nil
}

// Convert writes a PDF rendition of src into outDir and returns its path.
func (c *Converter) Convert(ctx context.Context, src, outDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// LibreOffice refuses to run two conversions against one profile.
	profile, err := os.MkdirTemp("", "printdesk-lo-*")
	if err != nil {
		return "", fmt.Errorf("failed to create profile dir: %w", err)
	}
	defer os.RemoveAll(profile)

	cmd := exec.CommandContext(ctx, c.binary,
		"-env:UserInstallation=file://"+filepath.ToSlash(profile),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		src,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %v\nOutput: %s", ErrConversion, err, strings.TrimSpace(string(output)))
	}

	out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".pdf")
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("%w: no output produced for %s", ErrConversion, filepath.Base(src))
	}
	return out, nil
}
