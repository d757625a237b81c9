package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/metrics"
	"github.com/JakeFAU/docket-crawler/internal/store"
	"github.com/JakeFAU/docket-crawler/internal/worker"
)

const readTimeout = 10 * time.Second

// DiscoveryRunner starts discovery runs.
type DiscoveryRunner interface {
	RunDiscovery(ctx context.Context, opts discovery.Options) (discovery.Result, error)
}

// DocumentProcessor extracts one document.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, rawURL, title string) error
}

// PendingProcessor drains the pending queue.
type PendingProcessor interface {
	ProcessAllPending(ctx context.Context, opts worker.Options) (worker.Summary, error)
}

// CatalogReader is the read side of the catalog used by the handlers.
type CatalogReader interface {
	GetDocument(ctx context.Context, id string) (store.Document, error)
	GetDocumentBySourceURL(ctx context.Context, sourceURL string) (store.Document, error)
	GetDocumentByCanonicalURL(ctx context.Context, canonicalURL string) (store.Document, error)
	GetRun(ctx context.Context, id string) (store.DiscoveryRun, error)
}

// Defaults fill request fields the caller leaves out.
type Defaults struct {
	MaxHubs          int
	Delay            time.Duration
	ResolveRedirects bool
	BatchLimit       int
	BatchDelay       time.Duration
}

// Deps are the services behind the routes. Nil services answer 503.
type Deps struct {
	Discovery DiscoveryRunner
	Processor DocumentProcessor
	Pending   PendingProcessor
	Catalog   CatalogReader
}

// Server wires HTTP handlers to the discovery and extraction services.
type Server struct {
	router   chi.Router
	deps     Deps
	defaults Defaults
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, defaults Defaults, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, defaults: defaults, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/discovery/runs", func(r chi.Router) {
			r.Post("/", s.startDiscovery)
			r.With(timeoutMiddleware(readTimeout)).Get("/{run_id}", s.getRun)
		})
		r.Route("/documents", func(r chi.Router) {
			r.Post("/process", s.processDocument)
			r.Post("/process-pending", s.processPending)
			r.With(timeoutMiddleware(readTimeout)).Get("/{id}", s.getDocument)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("Request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds read-only routes. Discovery and extraction routes
// run until the client goes away.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("Write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
