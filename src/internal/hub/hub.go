// FILE: wiretap/src/internal/hub/hub.go
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wiretap/src/internal/core"

	"github.com/lixenwraith/log"
)

// ErrClosed is returned for requests made after the hub loop has exited
var ErrClosed = errors.New("hub closed")

// Viewer is one live dashboard client
type Viewer interface {
	ID() string
	Send(ctx context.Context, msg any) error
	Close() error
}

// Source yields record log entries. It is only called from the hub loop.
type Source interface {
	Poll() ([]core.RecordEntry, error)
	Snapshot() ([]core.RecordEntry, error)
}

// InitialMessage carries the full history to a newly connected viewer
type InitialMessage struct {
	Type    string             `json:"type"`
	Entries []core.RecordEntry `json:"entries"`
	Total   int                `json:"total"`
}

// UpdateMessage carries one newly observed entry
type UpdateMessage struct {
	Type  string           `json:"type"`
	Entry core.RecordEntry `json:"entry"`
}

// Stats summarizes hub activity
type Stats struct {
	ActiveViewers   int64
	TotalConnects   uint64
	TotalBroadcasts uint64
	DroppedViewers  uint64
	PollErrors      uint64
	StartTime       time.Time
	LastBroadcast   time.Time
}

type connectRequest struct {
	viewer Viewer
	result chan error
}

// Hub owns the set of connected viewers. Every mutation of the set, every
// read of the source and every send happens on the Run goroutine.
type Hub struct {
	source       Source
	changes      <-chan struct{}
	writeTimeout time.Duration
	logger       *log.Logger

	// Owned by the loop
	viewers map[string]Viewer

	connect    chan connectRequest
	disconnect chan Viewer
	notify     chan core.RecordEntry
	done       chan struct{}
	runOnce    sync.Once
	startTime  time.Time

	// Statistics
	activeViewers   atomic.Int64
	totalConnects   atomic.Uint64
	totalBroadcasts atomic.Uint64
	droppedViewers  atomic.Uint64
	pollErrors      atomic.Uint64
	lastBroadcast   atomic.Value // time.Time
}

// New creates a hub reading from source whenever changes fires. A nil changes
// channel means entries arrive only through Notify.
func New(source Source, changes <-chan struct{}, writeTimeout time.Duration, logger *log.Logger) *Hub {
	h := &Hub{
		source:       source,
		changes:      changes,
		writeTimeout: writeTimeout,
		logger:       logger,
		viewers:      make(map[string]Viewer),
		connect:      make(chan connectRequest),
		disconnect:   make(chan Viewer),
		notify:       make(chan core.RecordEntry),
		done:         make(chan struct{}),
		startTime:    time.Now(),
	}
	h.lastBroadcast.Store(time.Time{})
	return h
}

// Run is the broker loop. It returns when ctx is cancelled, closing every
// remaining viewer.
func (h *Hub) Run(ctx context.Context) {
	defer h.runOnce.Do(func() { close(h.done) })
	defer h.closeAll()

	h.logger.Debug("msg", "Hub loop started", "component", "hub")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("msg", "Hub loop stopping due to context cancellation",
				"component", "hub",
				"viewers", len(h.viewers))
			return

		case req := <-h.connect:
			req.result <- h.handleConnect(ctx, req.viewer)

		case v := <-h.disconnect:
			h.remove(v, "disconnected")

		case entry := <-h.notify:
			h.broadcast(ctx, entry)

		case <-h.changes:
			h.drain(ctx)
		}
	}
}

// Connect registers viewer and sends it the current history. On a failed
// send the viewer is not left registered.
func (h *Hub) Connect(ctx context.Context, viewer Viewer) error {
	req := connectRequest{viewer: viewer, result: make(chan error, 1)}

	select {
	case h.connect <- req:
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-h.done:
		return ErrClosed
	}
}

// Disconnect removes viewer. Removing an absent viewer is a no-op.
func (h *Hub) Disconnect(viewer Viewer) {
	select {
	case h.disconnect <- viewer:
	case <-h.done:
	}
}

// Notify broadcasts entry to every connected viewer
func (h *Hub) Notify(entry core.RecordEntry) error {
	select {
	case h.notify <- entry:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

// Stats returns hub counters. Safe to call from any goroutine.
func (h *Hub) Stats() Stats {
	last, _ := h.lastBroadcast.Load().(time.Time)
	return Stats{
		ActiveViewers:   h.activeViewers.Load(),
		TotalConnects:   h.totalConnects.Load(),
		TotalBroadcasts: h.totalBroadcasts.Load(),
		DroppedViewers:  h.droppedViewers.Load(),
		PollErrors:      h.pollErrors.Load(),
		StartTime:       h.startTime,
		LastBroadcast:   last,
	}
}

func (h *Hub) handleConnect(ctx context.Context, viewer Viewer) error {
	// Deliver pending entries to existing viewers first so the snapshot
	// boundary is the tail position
	h.drain(ctx)

	entries, err := h.source.Snapshot()
	if err != nil {
		h.logger.Warn("msg", "Snapshot read incomplete",
			"component", "hub",
			"error", err)
	}
	if entries == nil {
		entries = make([]core.RecordEntry, 0)
	}

	id := viewer.ID()
	h.viewers[id] = viewer
	h.activeViewers.Store(int64(len(h.viewers)))

	msg := InitialMessage{Type: "initial", Entries: entries, Total: len(entries)}
	if err := h.send(ctx, viewer, msg); err != nil {
		delete(h.viewers, id)
		h.activeViewers.Store(int64(len(h.viewers)))
		h.logger.Debug("msg", "Initial snapshot send failed",
			"component", "hub",
			"viewer_id", id,
			"error", err)
		return fmt.Errorf("failed to send snapshot: %w", err)
	}

	h.totalConnects.Add(1)
	h.logger.Info("msg", "Viewer connected",
		"component", "hub",
		"viewer_id", id,
		"snapshot_entries", len(entries),
		"active_viewers", len(h.viewers))

	return nil
}

// drain broadcasts every entry appended since the last poll
func (h *Hub) drain(ctx context.Context) {
	entries, err := h.source.Poll()
	if err != nil {
		h.pollErrors.Add(1)
		h.logger.Warn("msg", "Record log poll failed",
			"component", "hub",
			"error", err)
	}
	for _, entry := range entries {
		h.broadcast(ctx, entry)
	}
}

func (h *Hub) broadcast(ctx context.Context, entry core.RecordEntry) {
	if len(h.viewers) == 0 {
		return
	}

	msg := UpdateMessage{Type: "update", Entry: entry}

	// Removal is deferred until the pass completes
	var failed []Viewer
	for _, v := range h.viewers {
		if err := h.send(ctx, v, msg); err != nil {
			h.logger.Debug("msg", "Update send failed",
				"component", "hub",
				"viewer_id", v.ID(),
				"error", err)
			failed = append(failed, v)
		}
	}

	h.totalBroadcasts.Add(1)
	h.lastBroadcast.Store(time.Now())

	for _, v := range failed {
		if h.remove(v, "send failed") {
			h.droppedViewers.Add(1)
		}
		v.Close()
	}
}

func (h *Hub) send(ctx context.Context, v Viewer, msg any) error {
	if h.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.writeTimeout)
		defer cancel()
	}
	return v.Send(ctx, msg)
}

func (h *Hub) remove(v Viewer, reason string) bool {
	id := v.ID()
	if _, exists := h.viewers[id]; !exists {
		return false
	}
	delete(h.viewers, id)
	h.activeViewers.Store(int64(len(h.viewers)))

	h.logger.Info("msg", "Viewer removed",
		"component", "hub",
		"viewer_id", id,
		"reason", reason,
		"active_viewers", len(h.viewers))
	return true
}

func (h *Hub) closeAll() {
	for id, v := range h.viewers {
		v.Close()
		delete(h.viewers, id)
	}
	h.activeViewers.Store(0)
}
