// FILE: wiretap/src/internal/core/entry.go
package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampFormat is used for the timestamp assigned to entries at read time
const TimestampFormat = time.RFC3339Nano

// RecordEntry is one request/response pair as stored in the record log.
// Timestamp is never written by the relay; readers fill it in when absent.
type RecordEntry struct {
	Request   string   `json:"request"`
	Response  Response `json:"response"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// recordLine mirrors RecordEntry for decoding, keeping the response opaque
type recordLine struct {
	Request   *string         `json:"request"`
	Response  json.RawMessage `json:"response"`
	Timestamp string          `json:"timestamp"`
}

// ParseRecordLine decodes a single record log line.
// Lines that are not a JSON object with a string "request" field are rejected.
func ParseRecordLine(line []byte, now time.Time) (RecordEntry, error) {
	var rec recordLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return RecordEntry{}, fmt.Errorf("malformed record: %w", err)
	}
	if rec.Request == nil {
		return RecordEntry{}, fmt.Errorf("malformed record: missing request")
	}

	entry := RecordEntry{
		Request:   *rec.Request,
		Response:  JSONValue(rec.Response),
		Timestamp: rec.Timestamp,
	}
	if entry.Timestamp == "" {
		entry.Timestamp = now.Format(TimestampFormat)
	}
	return entry, nil
}
