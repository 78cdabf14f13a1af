// Package server exposes one dubbing session over HTTP: JSON endpoints for
// the workflow triggers, media playback URLs, a WebSocket event stream, and
// Prometheus metrics.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/verseforge/songdub/media"
	"github.com/verseforge/songdub/session"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultReadTimeout is the maximum duration for reading the entire
	// request, including the upload body.
	defaultReadTimeout = 60 * time.Second

	// defaultWriteTimeout is the maximum duration before timing out
	// writes of the response.
	defaultWriteTimeout = 120 * time.Second

	// defaultIdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled.
	defaultIdleTimeout = 120 * time.Second

	// defaultMaxUploadBytes bounds the upload request body.
	defaultMaxUploadBytes int64 = session.DefaultMaxUploadBytes

	// multipartOverheadBytes covers multipart framing and form fields
	// beyond the file payload itself.
	multipartOverheadBytes int64 = 64 << 10
)

// Option configures a [Server].
type Option func(*Server)

// WithAddr sets the listen address for ListenAndServe. Default: ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithMaxUploadBytes sets the maximum accepted upload size. Non-positive
// values keep the default of 10 MB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithUploadRateLimit caps upload requests per second. Zero disables
// limiting, which is the default.
func WithUploadRateLimit(perSecond float64) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.uploads = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithReadTimeout sets the maximum duration for reading the entire request.
// Default: 60s.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets the maximum duration before timing out writes of
// the response. Default: 120s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// Server serves the dubbing session API.
type Server struct {
	orc   *session.Orchestrator
	store *media.Store

	addr      string
	maxUpload int64
	uploads   *rate.Limiter

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	httpSrv   *http.Server
	httpSrvMu sync.Mutex
}

// New creates a server around an orchestrator and its media store.
func New(orc *session.Orchestrator, store *media.Store, opts ...Option) *Server {
	s := &Server{
		orc:          orc,
		store:        store,
		addr:         ":8080",
		maxUpload:    defaultMaxUploadBytes,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		idleTimeout:  defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the http.Handler implementing the session API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/session", s.handleSnapshot)
	mux.HandleFunc("POST /v1/session/file", s.handleUpload)
	mux.HandleFunc("POST /v1/session/language", s.handleLanguage)
	mux.HandleFunc("POST /v1/session/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/session/translate", s.handleTranslate)
	mux.HandleFunc("POST /v1/session/synthesize", s.handleSynthesize)
	mux.HandleFunc("POST /v1/session/reset", s.handleReset)
	mux.HandleFunc("GET /v1/session/download", s.handleDownload)
	mux.HandleFunc("GET /media/{id}", s.handleMedia)
	mux.HandleFunc("GET /ws", s.handleEvents)
	return otelhttp.NewHandler(mux, "songdub-server")
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.Serve(ln)
}

// Shutdown drains in-flight HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
