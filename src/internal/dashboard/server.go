// FILE: wiretap/src/internal/dashboard/server.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"wiretap/src/internal/config"
	"wiretap/src/internal/hub"
	"wiretap/src/internal/middleware"
	"wiretap/src/internal/tail"
	"wiretap/src/internal/version"

	"github.com/coder/websocket"
	"github.com/dustin/go-humanize"
	"github.com/lixenwraith/log"
)

// Server serves the dashboard page, its assets, the viewer stream and a
// status endpoint
type Server struct {
	// Configuration reference (NOT a copy)
	config     *config.DashboardConfig
	recordPath string

	hub        *hub.Hub
	watcher    *tail.Watcher
	limiter    *middleware.RateLimiter
	httpServer *http.Server
	logger     *log.Logger
	startTime  time.Time
	wg         sync.WaitGroup
	stopOnce   sync.Once

	// Statistics
	totalAccepts    atomic.Uint64
	rejectedAccepts atomic.Uint64
	failedHandshake atomic.Uint64
}

// New creates a dashboard server publishing viewers to h. The watcher is
// only consulted for status reporting and may be nil.
func New(cfg *config.DashboardConfig, recordPath string, h *hub.Hub, watcher *tail.Watcher, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dashboard config cannot be nil")
	}
	if h == nil {
		return nil, fmt.Errorf("dashboard requires a hub")
	}

	s := &Server{
		config:     cfg,
		recordPath: recordPath,
		hub:        h,
		watcher:    watcher,
		logger:     logger,
		startTime:  time.Now(),
	}

	if cfg.AcceptRatePerSecond > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.AcceptRatePerSecond, int(cfg.AcceptBurst), time.Minute)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the routing table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.StaticDir))))
	var stream http.Handler = http.HandlerFunc(s.handleStream)
	if s.limiter != nil {
		stream = s.limiter.Middleware(stream, s.onRejectedAccept)
	}
	mux.Handle("GET "+s.config.StreamPath, stream)
	mux.HandleFunc("GET "+s.config.StatusPath, s.handleStatus)
	return mux
}

// Start binds the configured address and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.logger.Info("msg", "Dashboard server started",
		"component", "dashboard",
		"host", s.config.Host,
		"port", s.config.Port,
		"stream_path", s.config.StreamPath,
		"status_path", s.config.StatusPath,
		"static_dir", s.config.StaticDir)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(ln); err != nil {
			s.logger.Error("msg", "Dashboard server failed",
				"component", "dashboard",
				"error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Serve accepts connections from ln until the server is shut down
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down. Upgraded viewer connections are closed
// by the hub when its loop exits.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("msg", "Dashboard shutdown incomplete",
				"component", "dashboard",
				"error", err)
		}
		s.wg.Wait()

		if s.limiter != nil {
			s.limiter.Stop()
		}

		s.logger.Info("msg", "Dashboard server stopped", "component", "dashboard")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.config.StaticDir, "index.html"))
}

func (s *Server) onRejectedAccept(r *http.Request) {
	s.rejectedAccepts.Add(1)
	s.logger.Warn("msg", "Viewer connection rate limited",
		"component", "dashboard",
		"remote_addr", r.RemoteAddr)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Browsers on any origin may watch
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.failedHandshake.Add(1)
		s.logger.Debug("msg", "WebSocket handshake failed",
			"component", "dashboard",
			"remote_addr", r.RemoteAddr,
			"error", err)
		return
	}
	s.totalAccepts.Add(1)

	viewer := NewViewerConnection(conn, r.RemoteAddr, s.logger)
	ctx := r.Context()

	if err := s.hub.Connect(ctx, viewer); err != nil {
		s.logger.Debug("msg", "Viewer rejected",
			"component", "dashboard",
			"viewer_id", viewer.ID(),
			"error", err)
		viewer.Close()
		return
	}
	viewer.MarkOpen()

	if err := viewer.ReadLoop(ctx); err != nil {
		s.logger.Debug("msg", "Viewer read loop ended",
			"component", "dashboard",
			"viewer_id", viewer.ID(),
			"error", err)
	}
	s.hub.Disconnect(viewer)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	hubStats := s.hub.Stats()

	recordLog := map[string]any{
		"path":   s.recordPath,
		"exists": false,
	}
	if info, err := os.Stat(s.recordPath); err == nil {
		recordLog["exists"] = true
		recordLog["size_bytes"] = info.Size()
		recordLog["size"] = humanize.Bytes(uint64(info.Size()))
		recordLog["modified"] = humanize.Time(info.ModTime())
	}

	var watcherStats any = map[string]any{"enabled": false}
	if s.watcher != nil {
		ws := s.watcher.GetStats()
		watcherStats = map[string]any{
			"enabled":     true,
			"file_events": ws.FileEvents,
			"polls":       ws.Polls,
		}
	}

	var limitStats any = map[string]any{"enabled": false}
	if s.limiter != nil {
		ls := s.limiter.Stats()
		limitStats = map[string]any{
			"enabled":         true,
			"rate_per_second": ls.PerSecond,
			"burst":           ls.Burst,
			"active_clients":  ls.ActiveClients,
		}
	}

	lastBroadcast := ""
	if !hubStats.LastBroadcast.IsZero() {
		lastBroadcast = humanize.Time(hubStats.LastBroadcast)
	}

	status := map[string]any{
		"service": "wiretap",
		"version": version.Short(),
		"server": map[string]any{
			"type":           "dashboard",
			"port":           s.config.Port,
			"active_viewers": hubStats.ActiveViewers,
			"uptime_seconds": int(time.Since(s.startTime).Seconds()),
			"started":        humanize.Time(s.startTime),
		},
		"endpoints": map[string]string{
			"stream": s.config.StreamPath,
			"status": s.config.StatusPath,
		},
		"record_log": recordLog,
		"features": map[string]any{
			"watcher":     watcherStats,
			"accept_rate": limitStats,
		},
		"statistics": map[string]any{
			"total_accepts":     s.totalAccepts.Load(),
			"rejected_accepts":  s.rejectedAccepts.Load(),
			"failed_handshakes": s.failedHandshake.Load(),
			"total_connects":    hubStats.TotalConnects,
			"total_broadcasts":  hubStats.TotalBroadcasts,
			"dropped_viewers":   hubStats.DroppedViewers,
			"poll_errors":       hubStats.PollErrors,
			"last_broadcast":    lastBroadcast,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Debug("msg", "Failed to write status",
			"component", "dashboard",
			"error", err)
	}
}
