package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/contextual-meta-translator/internal/cache"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
	"github.com/MimeLyc/contextual-meta-translator/internal/service"
)

type translateService interface {
	Translate(ctx context.Context, snapshot metadata.Snapshot, targets []string) (service.Result, error)
	CacheStats(ctx context.Context) (cache.Stats, error)
	ClearCache(ctx context.Context) error
}

type Server struct {
	svc            translateService
	requestTimeout time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithRequestTimeout bounds each translate request, engine invocation
// included. Zero means no deadline.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = timeout
	}
}

func NewServer(svc translateService, opts ...Option) *Server {
	s := &Server{
		svc: svc,
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/translate", s.handleTranslate)
	s.mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/api/cache", s.handleCache)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}
