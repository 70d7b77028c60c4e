// FILE: wiretap/src/internal/dashboard/viewer.go
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/lixenwraith/log"
)

// ErrViewerClosed is returned when sending to a closed viewer
var ErrViewerClosed = errors.New("viewer closed")

// ViewerState is the lifecycle position of a viewer connection
type ViewerState int32

const (
	StateConnecting ViewerState = iota
	StateOpen
	StateClosed
)

func (s ViewerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ViewerConnection is one dashboard client on a WebSocket. Once closed it
// never reopens; a reconnecting browser gets a new instance.
type ViewerConnection struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	connectedAt time.Time
	logger      *log.Logger

	state     atomic.Int32
	closeOnce sync.Once

	messagesSent atomic.Uint64
	messagesRead atomic.Uint64
}

// NewViewerConnection wraps an accepted WebSocket
func NewViewerConnection(conn *websocket.Conn, remoteAddr string, logger *log.Logger) *ViewerConnection {
	return &ViewerConnection{
		id:          uuid.NewString(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		logger:      logger,
	}
}

func (v *ViewerConnection) ID() string {
	return v.id
}

func (v *ViewerConnection) State() ViewerState {
	return ViewerState(v.state.Load())
}

// MarkOpen moves a connecting viewer to open after its snapshot was delivered
func (v *ViewerConnection) MarkOpen() bool {
	return v.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Send writes msg as a single JSON text message. Any failure closes the viewer.
func (v *ViewerConnection) Send(ctx context.Context, msg any) error {
	if v.State() == StateClosed {
		return ErrViewerClosed
	}

	if err := wsjson.Write(ctx, v.conn, msg); err != nil {
		v.Close()
		return fmt.Errorf("failed to write to viewer %s: %w", v.id, err)
	}
	v.messagesSent.Add(1)
	return nil
}

// ReadLoop discards inbound messages until the peer goes away or ctx ends.
// The viewer is closed when it returns.
func (v *ViewerConnection) ReadLoop(ctx context.Context) error {
	defer v.Close()

	for {
		_, reader, err := v.conn.Reader(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if _, err := io.Copy(io.Discard, reader); err != nil {
			return err
		}
		v.messagesRead.Add(1)
	}
}

// Close tears the connection down. Safe to call more than once.
func (v *ViewerConnection) Close() error {
	var err error
	v.closeOnce.Do(func() {
		v.state.Store(int32(StateClosed))
		err = v.conn.CloseNow()

		v.logger.Debug("msg", "Viewer connection closed",
			"component", "viewer",
			"viewer_id", v.id,
			"remote_addr", v.remoteAddr,
			"messages_sent", v.messagesSent.Load(),
			"duration", time.Since(v.connectedAt).Round(time.Millisecond))
	})
	return err
}
