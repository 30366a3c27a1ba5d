package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/models"
)

// FileConfig configures the JSON-lines file source.
type FileConfig struct {
	Path         string        `yaml:"path"`
	FromStart    bool          `yaml:"from_start"` // replay existing lines before following
	PollInterval time.Duration `yaml:"poll_interval"`
}

// FileSource follows a file of newline-delimited JSON samples, such as a
// bedside gateway's export log. Rotation (the file is recreated) and
// copytruncate are both handled.
type FileSource struct {
	cfg    FileConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewFileSource creates a file source for cfg.Path.
func NewFileSource(cfg FileConfig, logger *zap.Logger) (*FileSource, error) {
	if cfg.Path == "" {
		return nil, errors.New("file path is required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Path, err)
	}
	cfg.Path = abs
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{
		cfg:    cfg,
		logger: logger.Named("file_source"),
		now:    time.Now,
	}, nil
}

// Name returns "file".
func (f *FileSource) Name() string {
	return "file"
}

// Run follows the file until ctx is cancelled. A file that does not exist
// yet is picked up once it is created.
func (f *FileSource) Run(ctx context.Context, h Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.cfg.Path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.cfg.Path), err)
	}

	t := &fileTail{path: f.cfg.Path}
	defer t.close()
	if err := t.open(!f.cfg.FromStart); err != nil && !os.IsNotExist(err) {
		return err
	}

	emit := func(line []byte) { f.handle(ctx, h, line) }
	t.drain(emit)

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	f.logger.Info("following file", zap.String("path", f.cfg.Path))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != f.cfg.Path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create) && !t.isCurrent():
				// Rotated: the new file is read from its start.
				t.close()
				if err := t.open(false); err != nil {
					f.logger.Warn("reopen after rotation failed", zap.Error(err))
					continue
				}
				t.drain(emit)
			default:
				t.drain(emit)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("watcher error", zap.Error(err))
		case <-ticker.C:
			t.poll(emit)
		}
	}
}

func (f *FileSource) handle(ctx context.Context, h Handler, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	metrics.SamplesReceived.WithLabelValues(f.Name()).Inc()

	s, err := models.DecodeSample(line, f.now())
	if err != nil {
		metrics.SamplesRejected.WithLabelValues(f.Name()).Inc()
		f.logger.Warn("invalid sample", zap.String("path", f.cfg.Path), zap.Error(err))
		return
	}
	if err := h(ctx, s); err != nil && ctx.Err() == nil {
		f.logger.Warn("sample handler failed",
			zap.String("patient_id", s.PatientID),
			zap.Error(err))
	}
}

// fileTail tracks the read position in one file. An incomplete trailing
// line is held back until its newline arrives.
type fileTail struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	offset  int64
	partial []byte
}

func (t *fileTail) open(seekEnd bool) error {
	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	var offset int64
	if seekEnd {
		if offset, err = file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return fmt.Errorf("seek %s: %w", t.path, err)
		}
	}
	t.file = file
	t.reader = bufio.NewReader(file)
	t.offset = offset
	t.partial = nil
	return nil
}

// isCurrent reports whether the open file is still the one at path.
func (t *fileTail) isCurrent() bool {
	if t.file == nil {
		return false
	}
	open, err := t.file.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(t.path)
	if err != nil {
		return false
	}
	return os.SameFile(open, onDisk)
}

func (t *fileTail) close() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
		t.reader = nil
	}
}

func (t *fileTail) drain(emit func([]byte)) {
	if t.reader == nil {
		return
	}
	for {
		chunk, err := t.reader.ReadBytes('\n')
		t.offset += int64(len(chunk))
		if err != nil {
			// EOF with a partial line, or a read error; either way wait for
			// the next event.
			t.partial = append(t.partial, chunk...)
			return
		}
		if len(t.partial) > 0 {
			chunk = append(t.partial, chunk...)
			t.partial = nil
		}
		emit(chunk)
	}
}

// poll covers missed events: a file that appeared, grew or was truncated.
func (t *fileTail) poll(emit func([]byte)) {
	info, err := os.Stat(t.path)
	if err != nil {
		return
	}
	if t.file == nil {
		if err := t.open(false); err != nil {
			return
		}
	} else if info.Size() < t.offset {
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			return
		}
		t.reader.Reset(t.file)
		t.offset = 0
		t.partial = nil
	}
	t.drain(emit)
}
