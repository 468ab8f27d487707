package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/orrn/printdesk/internal/core"
)

var pdfMagic = []byte("%PDF-")

// convertible lists the extensions LibreOffice is trusted to render.
var convertible = map[string]bool{
	".doc": true, ".docx": true, ".odt": true, ".rtf": true, ".txt": true,
	".xls": true, ".xlsx": true, ".ods": true, ".csv": true,
	".ppt": true, ".pptx": true, ".odp": true,
}

// Ingestor stores uploads in the spool directory and turns them into
// printable documents.
type Ingestor struct {
	spoolDir  string
	converter *Converter
	logger    *slog.Logger
}

func NewIngestor(spoolDir string, converter *Converter, logger *slog.Logger) (*Ingestor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(spoolDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}
	return &Ingestor{spoolDir: spoolDir, converter: converter, logger: logger}, nil
}

// Ingest stores r under the spool directory, converting it to PDF when it is
// not one already, and reads its page geometry. Files written here belong to
// the job created from the returned document.
func (in *Ingestor) Ingest(ctx context.Context, name string, r io.Reader) (core.Document, error) {
	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return core.Document{}, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	isPDF := bytes.Equal(head, pdfMagic)

	ext := strings.ToLower(filepath.Ext(name))
	if !isPDF && !convertible[ext] {
		return core.Document{}, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
	if isPDF {
		ext = ".pdf"
	}

	stored := filepath.Join(in.spoolDir, uuid.NewString()+ext)
	if err := writeFile(stored, io.MultiReader(bytes.NewReader(head), r)); err != nil {
		return core.Document{}, err
	}

	doc := core.Document{Path: stored, Name: name}
	if !isPDF {
		if in.converter == nil {
			os.Remove(stored)
			return core.Document{}, fmt.Errorf("%w: no converter configured", ErrConversion)
		}
		converted, err := in.converter.Convert(ctx, stored, in.spoolDir)
		os.Remove(stored)
		if err != nil {
			return core.Document{}, err
		}
		in.logger.Info("document converted", "name", name, "path", converted)
		doc.Path = converted
		doc.Converted = true
	}

	geometry, err := Inspect(doc.Path)
	if err != nil {
		os.Remove(doc.Path)
		return core.Document{}, err
	}
	doc.Pages = geometry
	return doc, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
