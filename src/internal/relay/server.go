// FILE: wiretap/src/internal/relay/server.go
package relay

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"wiretap/src/internal/config"
	"wiretap/src/internal/core"
	"wiretap/src/internal/version"

	"github.com/dustin/go-humanize"
	"github.com/lixenwraith/log"
	"github.com/lixenwraith/log/compat"
	"github.com/valyala/fasthttp"
)

// Appender persists one record per relayed exchange
type Appender interface {
	Append(entry core.RecordEntry) error
}

// Server forwards every inbound request to the upstream target and records
// the exchange in the record log
type Server struct {
	// Configuration reference (NOT a copy)
	config *config.RelayConfig

	// Runtime
	target    string
	client    *fasthttp.Client
	server    *fasthttp.Server
	records   Appender
	logger    *log.Logger
	startTime time.Time
	wg        sync.WaitGroup
	stopOnce  sync.Once

	// Statistics
	totalRequests    atomic.Uint64
	upstreamErrors   atomic.Uint64
	upstreamFailures atomic.Uint64
	appendFailures   atomic.Uint64
	lastRequest      atomic.Value // time.Time
}

// Stats summarizes relay activity
type Stats struct {
	Target           string
	TotalRequests    uint64
	UpstreamErrors   uint64
	UpstreamFailures uint64
	AppendFailures   uint64
	StartTime        time.Time
	LastRequest      time.Time
}

// Request headers that are never forwarded upstream. Transfer-Encoding is
// dropped as well because the inbound body has already been de-chunked.
var skipRequestHeaders = []string{"Host", "Connection", "Content-Length", "Transfer-Encoding"}

// Response headers that are never relayed back. Content-Length is recomputed
// from the relayed body, or taken from upstream for HEAD.
var skipResponseHeaders = []string{"Connection", "Transfer-Encoding", "Content-Length"}

// New creates a relay for the configured upstream
func New(cfg *config.RelayConfig, records Appender, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("relay config cannot be nil")
	}
	if records == nil {
		return nil, fmt.Errorf("relay requires a record appender")
	}

	target := strings.TrimRight(cfg.Target, "/")
	if target == "" {
		return nil, fmt.Errorf("relay target cannot be empty")
	}

	s := &Server{
		config:    cfg,
		target:    target,
		records:   records,
		logger:    logger,
		startTime: time.Now(),
		client: &fasthttp.Client{
			NoDefaultUserAgentHeader: true,
			DisablePathNormalizing:   true,
		},
	}
	s.lastRequest.Store(time.Time{})

	s.server = &fasthttp.Server{
		Name:                         version.ServerName(),
		Handler:                      s.requestHandler,
		MaxRequestBodySize:           int(cfg.MaxRequestBodySize),
		DisablePreParseMultipartForm: true,
		NoDefaultServerHeader:        true,
		NoDefaultDate:                true,
		NoDefaultContentType:         true,
		CloseOnShutdown:              true,
		Logger:                       compat.NewFastHTTPAdapter(logger),
	}

	return s, nil
}

// Start binds the configured address and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.logger.Info("msg", "Relay server started",
		"component", "relay",
		"host", s.config.Host,
		"port", s.config.Port,
		"target", s.target,
		"upstream_timeout_ms", s.config.UpstreamTimeoutMS)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(ln); err != nil {
			s.logger.Error("msg", "Relay server failed",
				"component", "relay",
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
	return s.server.Serve(ln)
}

// Stop shuts the server down, waiting briefly for in-flight requests
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.server.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Warn("msg", "Relay shutdown incomplete",
				"component", "relay",
				"error", err)
		}
		s.wg.Wait()

		s.logger.Info("msg", "Relay server stopped", "component", "relay")
	})
}

// GetStats returns request counters
func (s *Server) GetStats() Stats {
	last, _ := s.lastRequest.Load().(time.Time)
	return Stats{
		Target:           s.target,
		TotalRequests:    s.totalRequests.Load(),
		UpstreamErrors:   s.upstreamErrors.Load(),
		UpstreamFailures: s.upstreamFailures.Load(),
		AppendFailures:   s.appendFailures.Load(),
		StartTime:        s.startTime,
		LastRequest:      last,
	}
}

func (s *Server) requestHandler(ctx *fasthttp.RequestCtx) {
	s.totalRequests.Add(1)
	s.lastRequest.Store(time.Now())
	start := time.Now()

	body := ctx.Request.Body()
	upstreamURL := s.target + string(ctx.RequestURI())

	s.logger.Info("msg", "Forwarding request",
		"component", "relay",
		"method", string(ctx.Method()),
		"path", string(ctx.RequestURI()),
		"upstream", upstreamURL,
		"body_size", humanize.Bytes(uint64(len(body))))

	// Invalid sequences are dropped from the logged request text
	entry := core.RecordEntry{
		Request: strings.ToValidUTF8(string(body), ""),
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(upstreamURL)
	req.Header.SetMethodBytes(ctx.Method())
	copyRequestHeaders(&ctx.Request.Header, &req.Header)
	if len(body) > 0 {
		req.SetBody(body)
		req.Header.SetContentLength(len(body))
	}

	if err := s.do(req, resp); err != nil {
		s.upstreamFailures.Add(1)
		s.logger.Error("msg", "Upstream request failed",
			"component", "relay",
			"upstream", upstreamURL,
			"error", err)

		ctx.Response.Reset()
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		entry.Response = core.TransportError{Message: err.Error()}
		s.record(entry)
		return
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		s.upstreamErrors.Add(1)
	}

	upstreamBody := resp.Body()
	entry.Response = Decode(upstreamBody)

	ctx.SetStatusCode(status)
	copyResponseHeaders(&resp.Header, &ctx.Response.Header)
	if ctx.IsHead() {
		// HEAD relays the upstream length without a body
		ctx.Response.SkipBody = true
		if cl := resp.Header.ContentLength(); cl >= 0 {
			ctx.Response.Header.SetContentLength(cl)
		}
	} else {
		ctx.Response.SetBody(upstreamBody)
	}

	s.logger.Debug("msg", "Upstream responded",
		"component", "relay",
		"upstream", upstreamURL,
		"status", status,
		"body_size", humanize.Bytes(uint64(len(upstreamBody))),
		"duration_ms", time.Since(start).Milliseconds())

	s.record(entry)
}

// do issues the upstream request, bounded only when a timeout is configured
func (s *Server) do(req *fasthttp.Request, resp *fasthttp.Response) error {
	if s.config.UpstreamTimeoutMS > 0 {
		return s.client.DoTimeout(req, resp, time.Duration(s.config.UpstreamTimeoutMS)*time.Millisecond)
	}
	return s.client.Do(req, resp)
}

func (s *Server) record(entry core.RecordEntry) {
	if entry.Response == nil {
		return
	}
	if err := s.records.Append(entry); err != nil {
		s.appendFailures.Add(1)
		s.logger.Error("msg", "Failed to append record",
			"component", "relay",
			"error", err)
	}
}

func copyRequestHeaders(src, dst *fasthttp.RequestHeader) {
	src.VisitAll(func(key, value []byte) {
		if !headerIn(key, skipRequestHeaders) {
			dst.AddBytesKV(key, value)
		}
	})
}

func copyResponseHeaders(src *fasthttp.ResponseHeader, dst *fasthttp.ResponseHeader) {
	src.VisitAll(func(key, value []byte) {
		if !headerIn(key, skipResponseHeaders) {
			dst.AddBytesKV(key, value)
		}
	})
}

func headerIn(key []byte, names []string) bool {
	for _, name := range names {
		if bytes.EqualFold(key, []byte(name)) {
			return true
		}
	}
	return false
}
