package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/discovery"
	"github.com/JakeFAU/docket-crawler/internal/extract"
	"github.com/JakeFAU/docket-crawler/internal/store"
	"github.com/JakeFAU/docket-crawler/internal/urlnorm"
	"github.com/JakeFAU/docket-crawler/internal/worker"
)

const maxBatchLimit = 1000

type discoveryRequest struct {
	Sources          []string `json:"sources"`
	MaxHubs          *int     `json:"max_hubs"`
	DelayMs          *int     `json:"delay_ms"`
	ResolveRedirects *bool    `json:"resolve_redirects"`
}

type processRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type pendingRequest struct {
	Limit   *int `json:"limit"`
	DelayMs *int `json:"delay_ms"`
}

// documentDTO hides raw text unless asked for; extracted PDFs can be large.
type documentDTO struct {
	store.Document
	RawText *string `json:"raw_text,omitempty"`
}

// startDiscovery handles POST /v1/discovery/runs. An empty body runs every
// configured source with the server defaults.
func (s *Server) startDiscovery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Discovery == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery unavailable")
		return
	}
	var req discoveryRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	opts := discovery.Options{
		MaxHubs:          valueOrDefault(req.MaxHubs, s.defaults.MaxHubs),
		Delay:            s.defaults.Delay,
		ResolveRedirects: valueOrDefault(req.ResolveRedirects, s.defaults.ResolveRedirects),
	}
	if req.DelayMs != nil {
		if *req.DelayMs < 0 {
			writeError(w, http.StatusBadRequest, "delay_ms must be >= 0")
			return
		}
		opts.Delay = time.Duration(*req.DelayMs) * time.Millisecond
	}
	for _, name := range req.Sources {
		source, err := discovery.ParseSource(strings.TrimSpace(name))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Sources = append(opts.Sources, source)
	}

	result, err := s.deps.Discovery.RunDiscovery(r.Context(), opts)
	if err != nil {
		s.logger.Error("Discovery run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "discovery run failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getRun handles GET /v1/discovery/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	run, err := s.deps.Catalog.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("Get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

// processDocument handles POST /v1/documents/process. Rate limiting maps to
// 429; any other failure maps to 502 and the record is left in the error status.
func (s *Server) processDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Processor == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction unavailable")
		return
	}
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	if err := s.deps.Processor.ProcessDocument(r.Context(), req.URL, req.Title); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, extract.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, err.Error())
		return
	}

	payload := map[string]any{"url": req.URL}
	if doc, ok := s.findDocument(r, req.URL); ok {
		payload["document_id"] = doc.ID
		payload["status"] = doc.Status
	}
	writeJSON(w, http.StatusOK, payload)
}

// findDocument resolves rawURL the way the pipeline records it: by source URL,
// then by canonical form for variants that differ only in tracking params,
// case or scheme.
func (s *Server) findDocument(r *http.Request, rawURL string) (store.Document, bool) {
	if s.deps.Catalog == nil {
		return store.Document{}, false
	}
	if doc, err := s.deps.Catalog.GetDocumentBySourceURL(r.Context(), rawURL); err == nil {
		return doc, true
	}
	doc, err := s.deps.Catalog.GetDocumentByCanonicalURL(r.Context(), urlnorm.Normalize(rawURL))
	if err != nil {
		return store.Document{}, false
	}
	return doc, true
}

// processPending handles POST /v1/documents/process-pending.
func (s *Server) processPending(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pending == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction unavailable")
		return
	}
	var req pendingRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	opts := worker.Options{
		Limit: valueOrDefault(req.Limit, s.defaults.BatchLimit),
		Delay: s.defaults.BatchDelay,
	}
	if opts.Limit <= 0 || opts.Limit > maxBatchLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxBatchLimit))
		return
	}
	if req.DelayMs != nil {
		if *req.DelayMs < 0 {
			writeError(w, http.StatusBadRequest, "delay_ms must be >= 0")
			return
		}
		opts.Delay = time.Duration(*req.DelayMs) * time.Millisecond
	}

	summary, err := s.deps.Pending.ProcessAllPending(r.Context(), opts)
	if err != nil {
		s.logger.Error("Pending batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "pending batch failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// getDocument handles GET /v1/documents/{id}?include_text=true.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	doc, err := s.deps.Catalog.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("Get document failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	dto := documentDTO{Document: doc}
	if include, _ := strconv.ParseBool(r.URL.Query().Get("include_text")); include {
		dto.RawText = doc.RawText
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": dto})
}

// decodeOptional decodes a JSON body when present. It writes a 400 and
// returns false on malformed input.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
