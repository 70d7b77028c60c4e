// FILE: wiretap/src/internal/hub/hub_test.go
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wiretap/src/internal/core"
	"wiretap/src/internal/recordlog"
	"wiretap/src/internal/tail"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

// fakeViewer records every message it is sent
type fakeViewer struct {
	id       string
	mu       sync.Mutex
	messages []any
	sendErr  error
	closed   bool
}

func newFakeViewer(id string) *fakeViewer {
	return &fakeViewer{id: id}
}

func (v *fakeViewer) ID() string { return v.id }

func (v *fakeViewer) Send(ctx context.Context, msg any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sendErr != nil {
		return v.sendErr
	}
	v.messages = append(v.messages, msg)
	return nil
}

func (v *fakeViewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *fakeViewer) fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sendErr = err
}

func (v *fakeViewer) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *fakeViewer) snapshot() []any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]any(nil), v.messages...)
}

func (v *fakeViewer) updates() []UpdateMessage {
	var out []UpdateMessage
	for _, m := range v.snapshot() {
		if u, ok := m.(UpdateMessage); ok {
			out = append(out, u)
		}
	}
	return out
}

// staticSource serves a fixed history and queued polls
type staticSource struct {
	mu      sync.Mutex
	history []core.RecordEntry
	pending []core.RecordEntry
}

func (s *staticSource) Poll() ([]core.RecordEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.history = append(s.history, s.pending...)
	s.pending = nil
	return out, nil
}

func (s *staticSource) Snapshot() ([]core.RecordEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.RecordEntry(nil), s.history...), nil
}

func (s *staticSource) push(entries ...core.RecordEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, entries...)
}

func entry(request string) core.RecordEntry {
	return core.RecordEntry{Request: request, Response: core.JSONValue(`{}`), Timestamp: "2025-01-01T00:00:00Z"}
}

func startHub(t *testing.T, source Source, changes <-chan struct{}) *Hub {
	t.Helper()
	h := New(source, changes, time.Second, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func TestHub_ConnectSendsSnapshot(t *testing.T) {
	source := &staticSource{history: []core.RecordEntry{entry("a"), entry("b"), entry("c")}}
	h := startHub(t, source, nil)

	v := newFakeViewer("v1")
	require.NoError(t, h.Connect(context.Background(), v))

	msgs := v.snapshot()
	require.Len(t, msgs, 1)
	initial, ok := msgs[0].(InitialMessage)
	require.True(t, ok)
	assert.Equal(t, "initial", initial.Type)
	assert.Equal(t, 3, initial.Total)
	require.Len(t, initial.Entries, 3)
	assert.Equal(t, "a", initial.Entries[0].Request)
	assert.Equal(t, "c", initial.Entries[2].Request)

	assert.Equal(t, int64(1), h.Stats().ActiveViewers)
}

func TestHub_EmptySnapshotIsEmptyArray(t *testing.T) {
	h := startHub(t, &staticSource{}, nil)

	v := newFakeViewer("v1")
	require.NoError(t, h.Connect(context.Background(), v))

	out, err := json.Marshal(v.snapshot()[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"initial","entries":[],"total":0}`, string(out))
}

func TestHub_FailedSnapshotLeavesNoRegistration(t *testing.T) {
	h := startHub(t, &staticSource{history: []core.RecordEntry{entry("a")}}, nil)

	v := newFakeViewer("v1")
	v.fail(errors.New("broken pipe"))

	err := h.Connect(context.Background(), v)
	assert.Error(t, err)
	assert.Equal(t, int64(0), h.Stats().ActiveViewers)

	// A later update does not reach it
	require.NoError(t, h.Notify(entry("b")))
	assert.Equal(t, uint64(0), h.Stats().TotalBroadcasts, "empty set is a no-op")
}

func TestHub_NotifyBroadcasts(t *testing.T) {
	h := startHub(t, &staticSource{}, nil)

	v1 := newFakeViewer("v1")
	v2 := newFakeViewer("v2")
	require.NoError(t, h.Connect(context.Background(), v1))
	require.NoError(t, h.Connect(context.Background(), v2))

	require.NoError(t, h.Notify(entry("x")))
	require.NoError(t, h.Notify(entry("y")))

	// A connect round-trips through the loop, so earlier notifies are done
	require.NoError(t, h.Connect(context.Background(), newFakeViewer("sync")))

	for _, v := range []*fakeViewer{v1, v2} {
		updates := v.updates()
		require.Len(t, updates, 2)
		assert.Equal(t, "update", updates[0].Type)
		assert.Equal(t, "x", updates[0].Entry.Request)
		assert.Equal(t, "y", updates[1].Entry.Request)
	}
	assert.Equal(t, uint64(2), h.Stats().TotalBroadcasts)
}

func TestHub_FailedViewerDroppedAfterPass(t *testing.T) {
	h := startHub(t, &staticSource{}, nil)

	good := newFakeViewer("good")
	bad := newFakeViewer("bad")
	require.NoError(t, h.Connect(context.Background(), good))
	require.NoError(t, h.Connect(context.Background(), bad))

	bad.fail(errors.New("write: connection reset"))
	require.NoError(t, h.Notify(entry("1")))
	require.NoError(t, h.Notify(entry("2")))
	require.NoError(t, h.Connect(context.Background(), newFakeViewer("sync")))

	assert.Len(t, good.updates(), 2)
	assert.Empty(t, bad.updates())
	assert.True(t, bad.isClosed())

	stats := h.Stats()
	assert.Equal(t, int64(2), stats.ActiveViewers, "good and sync remain")
	assert.Equal(t, uint64(1), stats.DroppedViewers)
}

func TestHub_DisconnectIdempotent(t *testing.T) {
	h := startHub(t, &staticSource{}, nil)

	v := newFakeViewer("v1")
	require.NoError(t, h.Connect(context.Background(), v))

	h.Disconnect(v)
	h.Disconnect(v)
	h.Disconnect(newFakeViewer("never-connected"))

	require.NoError(t, h.Notify(entry("after")))
	require.NoError(t, h.Connect(context.Background(), newFakeViewer("sync")))

	assert.Empty(t, v.updates())
	assert.Equal(t, int64(1), h.Stats().ActiveViewers)
}

func TestHub_ChangesDrainSource(t *testing.T) {
	source := &staticSource{history: []core.RecordEntry{entry("old")}}
	changes := make(chan struct{}, 1)
	h := startHub(t, source, changes)

	v := newFakeViewer("v1")
	require.NoError(t, h.Connect(context.Background(), v))

	source.push(entry("new-1"), entry("new-2"))
	changes <- struct{}{}

	require.Eventually(t, func() bool { return len(v.updates()) == 2 }, 2*time.Second, 10*time.Millisecond)
	updates := v.updates()
	assert.Equal(t, "new-1", updates[0].Entry.Request)
	assert.Equal(t, "new-2", updates[1].Entry.Request)
}

func TestHub_ConnectDrainsPendingFirst(t *testing.T) {
	source := &staticSource{history: []core.RecordEntry{entry("a")}}
	h := startHub(t, source, nil)

	early := newFakeViewer("early")
	require.NoError(t, h.Connect(context.Background(), early))

	// Appended but not yet signalled
	source.push(entry("b"))

	late := newFakeViewer("late")
	require.NoError(t, h.Connect(context.Background(), late))

	// Existing viewer gets the pending entry as an update
	updates := early.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "b", updates[0].Entry.Request)

	// New viewer gets it in the snapshot and never as an update
	initial := late.snapshot()[0].(InitialMessage)
	assert.Equal(t, 2, initial.Total)
	assert.Empty(t, late.updates())
}

func TestHub_ClosedAfterRun(t *testing.T) {
	h := New(&staticSource{}, nil, time.Second, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	v := newFakeViewer("v1")
	require.NoError(t, h.Connect(context.Background(), v))

	cancel()
	<-done

	assert.True(t, v.isClosed())
	assert.ErrorIs(t, h.Connect(context.Background(), newFakeViewer("v2")), ErrClosed)
	assert.ErrorIs(t, h.Notify(entry("x")), ErrClosed)
	h.Disconnect(v)
}

func TestHub_WithRecordLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"request":"a","response":{"x":1}}`+"\n"+
			`{"request":"b","response":{"y":2}}`+"\n"), 0644))

	tailer, err := tail.NewTailer(path, newTestLogger())
	require.NoError(t, err)

	changes := make(chan struct{}, 1)
	h := startHub(t, tailer, changes)

	v := newFakeViewer("v1")
	require.NoError(t, h.Connect(context.Background(), v))

	out, err := json.Marshal(v.snapshot()[0])
	require.NoError(t, err)

	var decoded struct {
		Type    string `json:"type"`
		Total   int    `json:"total"`
		Entries []struct {
			Request   string          `json:"request"`
			Response  json.RawMessage `json:"response"`
			Timestamp string          `json:"timestamp"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "initial", decoded.Type)
	assert.Equal(t, 2, decoded.Total)
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, "a", decoded.Entries[0].Request)
	assert.JSONEq(t, `{"x":1}`, string(decoded.Entries[0].Response))
	assert.Equal(t, "b", decoded.Entries[1].Request)
	assert.JSONEq(t, `{"y":2}`, string(decoded.Entries[1].Response))
	for _, e := range decoded.Entries {
		_, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		assert.NoError(t, err)
	}

	// One appended entry produces exactly one update
	writer := recordlog.NewWriter(path, newTestLogger())
	defer writer.Close()
	require.NoError(t, writer.Append(core.RecordEntry{Request: "c", Response: core.RawText{Text: "hi"}}))
	changes <- struct{}{}

	require.Eventually(t, func() bool { return len(v.updates()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Further signals with nothing new add nothing
	changes <- struct{}{}
	require.NoError(t, h.Connect(context.Background(), newFakeViewer("sync")))
	updates := v.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "c", updates[0].Entry.Request)
}
