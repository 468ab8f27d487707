package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileSource follows a notification log the way tail -F does: it reads lines
// appended to the file and starts over when the file is recreated or
// truncated.
type FileSource struct {
	path      string
	fromStart bool
	handler   Handler
	logger    *slog.Logger

	file    *os.File
	reader  *bufio.Reader
	offset  int64
	partial strings.Builder
}

// NewFileSource creates a source for path. Lines already in the file are
// skipped unless fromStart is set.
func NewFileSource(path string, fromStart bool, h Handler, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:      filepath.Clean(path),
		fromStart: fromStart,
		handler:   h,
		logger:    logger.With("source", path),
	}
}

// Run follows the file until ctx is canceled.
func (s *FileSource) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so rotation and late creation are seen.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}
	defer s.close()

	if err := s.open(s.fromStart); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.drain()

	s.logger.Info("following notification log")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				s.close()
				if err := s.open(true); err != nil {
					s.logger.Warn("failed to reopen notification log", "error", err)
					continue
				}
				s.drain()
			case ev.Has(fsnotify.Write):
				s.drain()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				s.drain()
				s.close()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

func (s *FileSource) open(fromStart bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	var offset int64
	if !fromStart {
		if offset, err = f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("failed to seek notification log: %w", err)
		}
	}
	s.file = f
	s.reader = bufio.NewReader(f)
	s.offset = offset
	s.partial.Reset()
	return nil
}

func (s *FileSource) close() {
	if s.file != nil {
		s.file.Close()
	}
	s.file = nil
	s.reader = nil
}

// drain delivers every complete line written since the last call.
func (s *FileSource) drain() {
	if s.file == nil {
		if err := s.open(true); err != nil {
			return
		}
	}

	if info, err := s.file.Stat(); err == nil && info.Size() < s.offset {
		s.logger.Info("notification log truncated, starting over")
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			s.logger.Warn("failed to rewind notification log", "error", err)
			return
		}
		s.reader.Reset(s.file)
		s.offset = 0
		s.partial.Reset()
	}

	for {
		chunk, err := s.reader.ReadString('\n')
		s.offset += int64(len(chunk))
		s.partial.WriteString(chunk)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("failed to read notification log", "error", err)
			}
			return
		}

		line := s.partial.String()
		s.partial.Reset()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.handler.Handle(ParseLine(line))
	}
}
