// FILE: wiretap/src/internal/recordlog/writer.go
package recordlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"wiretap/src/internal/core"

	"github.com/dustin/go-humanize"
	"github.com/lixenwraith/log"
)

// Writer appends records to the log file. Appends from concurrent
// requests are serialized so lines never interleave.
type Writer struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger

	// Statistics
	totalAppended atomic.Uint64
	totalBytes    atomic.Uint64
	totalFailed   atomic.Uint64
	lastAppend    atomic.Value // time.Time
}

// WriterStats is a point-in-time view of writer activity
type WriterStats struct {
	Path          string
	TotalAppended uint64
	TotalBytes    uint64
	TotalFailed   uint64
	LastAppend    time.Time
}

// NewWriter prepares a writer for path. The file itself is created on first append.
func NewWriter(path string, logger *log.Logger) *Writer {
	w := &Writer{
		path:   path,
		logger: logger,
	}
	w.lastAppend.Store(time.Time{})
	return w
}

// Append serializes entry as one line and appends it
func (w *Writer) Append(entry core.RecordEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		w.totalFailed.Add(1)
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			w.totalFailed.Add(1)
			return err
		}
	}

	if _, err := w.file.Write(data); err != nil {
		w.totalFailed.Add(1)
		return fmt.Errorf("failed to append record to %s: %w", w.path, err)
	}

	w.totalAppended.Add(1)
	w.totalBytes.Add(uint64(len(data)))
	w.lastAppend.Store(time.Now())

	w.logger.Debug("msg", "Record appended",
		"component", "record_log",
		"path", w.path,
		"size", humanize.Bytes(uint64(len(data))))

	return nil
}

// open must be called with mu held
func (w *Writer) open() error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create record log directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open record log %s: %w", w.path, err)
	}
	w.file = file

	w.logger.Info("msg", "Record log opened",
		"component", "record_log",
		"path", w.path)
	return nil
}

// Close releases the file handle. A later Append reopens it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Path returns the record log location
func (w *Writer) Path() string {
	return w.path
}

// GetStats returns append counters
func (w *Writer) GetStats() WriterStats {
	last, _ := w.lastAppend.Load().(time.Time)
	return WriterStats{
		Path:          w.path,
		TotalAppended: w.totalAppended.Load(),
		TotalBytes:    w.totalBytes.Load(),
		TotalFailed:   w.totalFailed.Load(),
		LastAppend:    last,
	}
}
