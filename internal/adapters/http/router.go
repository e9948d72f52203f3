package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/akozlov/graphrag/internal/core/ports"
	"github.com/akozlov/graphrag/internal/observability/metrics"
)

const maxUploadBytes = 50 << 20

type Router struct {
	ingest   ports.DocumentIngestor
	answerer ports.QuestionAnswerer
	docs     ports.DocumentReader
	metrics  *metrics.HTTPServerMetrics
	service  string

	rateLimitRPS   float64
	rateLimitBurst int
}

type RouterConfig struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(
	ingest ports.DocumentIngestor,
	answerer ports.QuestionAnswerer,
	docs ports.DocumentReader,
	m *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	service := cfg.Service
	if service == "" {
		service = "api"
	}
	return &Router{
		ingest:         ingest,
		answerer:       answerer,
		docs:           docs,
		metrics:        m,
		service:        service,
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/query", rt.query)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeError(w, r, "upload document", err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(rt.service, fileHeader.Size)
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type queryRequest struct {
	Question  string `json:"question"`
	UseHybrid *bool  `json:"use_hybrid"`
	TopK      int    `json:"top_k"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	useHybrid := true
	if req.UseHybrid != nil {
		useHybrid = *req.UseHybrid
	}

	start := time.Now()
	answer, err := rt.answerer.Query(r.Context(), req.Question, useHybrid, req.TopK)
	if err != nil {
		rt.writeError(w, r, "answer query", err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswer(rt.service, answer, time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		slog.Error(op,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
	message := err.Error()
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		status = http.StatusRequestEntityTooLarge
		message = "uploaded file is too large"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
