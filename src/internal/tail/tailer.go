// FILE: wiretap/src/internal/tail/tailer.go
package tail

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"wiretap/src/internal/core"
	"wiretap/src/internal/recordlog"

	"github.com/lixenwraith/log"
)

// TailerInfo contains information about a tailer
type TailerInfo struct {
	Path         string
	Offset       int64
	Size         int64
	EntriesRead  uint64
	LastReadTime time.Time
	Rotations    uint64
	LinesSkipped uint64
}

// Tailer follows the record log by byte offset. It is not safe for
// concurrent use; the hub loop owns it.
type Tailer struct {
	path   string
	offset int64
	size   int64
	inode  uint64
	logger *log.Logger

	rotations    atomic.Uint64
	entriesRead  atomic.Uint64
	linesSkipped atomic.Uint64
	lastReadTime atomic.Value // time.Time
}

// NewTailer positions a tailer at the end of the last complete line of path.
// Entries already in the file are served by Snapshot, not Poll.
func NewTailer(path string, logger *log.Logger) (*Tailer, error) {
	t := &Tailer{
		path:   path,
		logger: logger,
	}
	t.lastReadTime.Store(time.Time{})

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to open record log %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat record log %s: %w", path, err)
	}

	consumed, skipped, err := recordlog.ScanLines(file, func([]byte) {})
	if err != nil {
		return nil, fmt.Errorf("failed to scan record log %s: %w", path, err)
	}
	t.logSkipped(skipped)

	t.offset = consumed
	t.size = info.Size()
	t.inode = inodeOf(info)

	return t, nil
}

// Path returns the followed file
func (t *Tailer) Path() string {
	return t.path
}

// Offset returns the position just past the last consumed line
func (t *Tailer) Offset() int64 {
	return t.offset
}

// Poll returns the well-formed entries appended since the previous poll. A
// trailing line without its newline stays in the file for the next poll.
func (t *Tailer) Poll() ([]core.RecordEntry, error) {
	file, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open record log %s: %w", t.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat record log %s: %w", t.path, err)
	}

	currentSize := info.Size()
	currentInode := inodeOf(info)
	t.checkRotation(currentSize, currentInode)

	t.size = currentSize
	if currentInode != 0 {
		t.inode = currentInode
	}

	if currentSize <= t.offset {
		return nil, nil
	}

	if _, err := file.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek record log %s: %w", t.path, err)
	}

	var entries []core.RecordEntry
	now := time.Now()
	consumed, skipped, err := recordlog.ScanLines(io.LimitReader(file, currentSize-t.offset), func(line []byte) {
		entry, err := core.ParseRecordLine(line, now)
		if err != nil {
			t.logger.Debug("msg", "Skipping malformed record line",
				"component", "tailer",
				"path", t.path,
				"error", err)
			return
		}
		entries = append(entries, entry)
	})
	t.offset += consumed
	t.logSkipped(skipped)

	if len(entries) > 0 {
		t.entriesRead.Add(uint64(len(entries)))
		t.lastReadTime.Store(now)
	}

	if err != nil {
		return entries, fmt.Errorf("failed to read record log %s: %w", t.path, err)
	}
	return entries, nil
}

func (t *Tailer) logSkipped(skipped int) {
	if skipped == 0 {
		return
	}
	t.linesSkipped.Add(uint64(skipped))
	t.logger.Warn("msg", "Skipped oversized record lines",
		"component", "tailer",
		"path", t.path,
		"count", skipped)
}

// checkRotation rewinds to the start of the file when it was truncated or
// replaced by a shorter file
func (t *Tailer) checkRotation(currentSize int64, currentInode uint64) {
	reason := ""
	switch {
	case currentSize < t.size || currentSize < t.offset:
		reason = "size decrease"
	case t.inode != 0 && currentInode != 0 && currentInode != t.inode && currentSize < t.offset:
		reason = "inode change with size less than offset"
	case t.inode != 0 && currentInode != 0 && currentInode != t.inode:
		t.logger.Debug("msg", "Record log replaced in place",
			"component", "tailer",
			"path", t.path,
			"old_inode", t.inode,
			"new_inode", currentInode,
			"offset", t.offset)
	}

	if reason == "" {
		return
	}

	seq := t.rotations.Add(1)
	t.logger.Info("msg", "Record log rotation detected",
		"component", "tailer",
		"path", t.path,
		"sequence", seq,
		"reason", reason,
		"old_offset", t.offset,
		"size", currentSize)
	t.offset = 0
}

// Snapshot returns every entry before the current offset, so a snapshot
// followed by polled entries neither repeats nor skips a line
func (t *Tailer) Snapshot() ([]core.RecordEntry, error) {
	entries, _, err := recordlog.ReadUntil(t.path, t.offset)
	return entries, err
}

// GetInfo returns tailer counters
func (t *Tailer) GetInfo() TailerInfo {
	info := TailerInfo{
		Path:         t.path,
		Offset:       t.offset,
		Size:         t.size,
		EntriesRead:  t.entriesRead.Load(),
		Rotations:    t.rotations.Load(),
		LinesSkipped: t.linesSkipped.Load(),
	}
	if lastRead, ok := t.lastReadTime.Load().(time.Time); ok {
		info.LastReadTime = lastRead
	}
	return info
}

func inodeOf(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(stat.Ino)
	}
	return 0
}
