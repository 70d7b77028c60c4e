// FILE: wiretap/src/internal/recordlog/reader.go
package recordlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"wiretap/src/internal/core"
)

// Upper bound for a single record line, longer lines are skipped
var maxLineSize int64 = 64 * 1024 * 1024

// ReadAll returns every well-formed entry in file order together with the
// byte offset just past the last complete line. A missing file is an empty log.
func ReadAll(path string) ([]core.RecordEntry, int64, error) {
	return ReadUntil(path, -1)
}

// ReadUntil returns the well-formed entries among the complete lines that end
// at or before limit. A negative limit reads to the end of the file.
func ReadUntil(path string, limit int64) ([]core.RecordEntry, int64, error) {
	entries := make([]core.RecordEntry, 0)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, 0, nil
		}
		return entries, 0, fmt.Errorf("failed to open record log %s: %w", path, err)
	}
	defer file.Close()

	var src io.Reader = file
	if limit >= 0 {
		src = io.LimitReader(file, limit)
	}

	now := time.Now()
	consumed, _, err := ScanLines(src, func(line []byte) {
		if entry, err := core.ParseRecordLine(line, now); err == nil {
			entries = append(entries, entry)
		}
	})
	if err != nil {
		return entries, consumed, fmt.Errorf("failed to read record log %s: %w", path, err)
	}

	return entries, consumed, nil
}

// ScanLines calls fn for every non-blank complete line in r and returns the
// number of bytes consumed up to and including the last newline, plus the
// number of complete lines skipped for exceeding maxLineSize. A trailing
// fragment without a newline is not consumed.
func ScanLines(r io.Reader, fn func(line []byte)) (int64, int, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	skipped := 0

	for {
		line, n, err := readLine(reader)
		if err == nil {
			consumed += n
			if line == nil {
				skipped++
			} else if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				fn(trimmed)
			}
			continue
		}

		if errors.Is(err, io.EOF) {
			return consumed, skipped, nil
		}
		return consumed, skipped, err
	}
}

// readLine reads through the next newline and reports the bytes read. A line
// beyond maxLineSize is drained and returned as nil. A nil error means the
// newline was found.
func readLine(reader *bufio.Reader) ([]byte, int64, error) {
	var buf []byte
	var n int64
	oversized := false
	for {
		chunk, err := reader.ReadSlice('\n')
		n += int64(len(chunk))
		if n > maxLineSize {
			oversized = true
			buf = nil
		} else {
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if oversized {
			return nil, n, err
		}
		return buf, n, err
	}
}
