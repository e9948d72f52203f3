package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/akozlov/graphrag/internal/core/domain"
	"github.com/akozlov/graphrag/internal/observability/metrics"
)

type ingestorFake struct {
	doc *domain.Document
	err error
}

func (f *ingestorFake) Upload(_ context.Context, filename, mimeType string, _ io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	doc.Filename = filename
	doc.MimeType = mimeType
	return &doc, nil
}

type answererFake struct {
	answer    *domain.Answer
	err       error
	question  string
	useHybrid bool
	topK      int
}

func (f *answererFake) Query(_ context.Context, question string, useHybrid bool, topK int) (*domain.Answer, error) {
	f.question = question
	f.useHybrid = useHybrid
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type docReaderFake struct {
	doc *domain.Document
	err error
}

func (f *docReaderFake) GetByID(_ context.Context, _ string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func acceptedAnswer() *domain.Answer {
	return &domain.Answer{
		Text: "John Smith works at Tech Corp.",
		Confidence: domain.ConfidenceReport{
			Score:   0.82,
			Verdict: domain.VerdictAccept,
			Components: map[string]float64{
				"source_quality": 0.9,
			},
		},
		QueryType: domain.QueryRelational,
		Sources: []domain.RetrievedChunk{
			{ChunkID: "doc-1:000000", DocumentID: "doc-1", Text: "John Smith works at Tech Corp.", Score: 0.9},
		},
		KGContext: domain.GraphHits{
			Entities:  []domain.Entity{{ID: "1", Name: "John Smith", Type: "Person"}},
			Relations: []domain.Relation{{SourceName: "John Smith", Type: "WORKS_AT", TargetName: "Tech Corp"}},
		},
		ReasoningSteps: []string{"Query classified as: relational"},
	}
}

func newTestRouter(ingest *ingestorFake, answerer *answererFake, docs *docReaderFake, cfg RouterConfig) http.Handler {
	if ingest == nil {
		ingest = &ingestorFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusUploaded}}
	}
	if answerer == nil {
		answerer = &answererFake{answer: acceptedAnswer()}
	}
	if docs == nil {
		docs = &docReaderFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusReady}}
	}
	return NewRouter(ingest, answerer, docs, metrics.NewHTTPServerMetrics("api-test"), cfg).Handler()
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestUploadDocumentAccepted(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, RouterConfig{})

	body, contentType := multipartBody(t, "file", "notes.txt", "John Smith works at Tech Corp.")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var doc domain.Document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.Filename != "notes.txt" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUploadDocumentRequiresFileField(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, RouterConfig{})

	body, contentType := multipartBody(t, "attachment", "notes.txt", "data")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetDocumentNotFoundMapsTo404(t *testing.T) {
	docs := &docReaderFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("missing"))}
	handler := newTestRouter(nil, nil, docs, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestQueryReturnsFullAnswerPayload(t *testing.T) {
	answerer := &answererFake{answer: acceptedAnswer()}
	handler := newTestRouter(nil, answerer, nil, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query",
		strings.NewReader(`{"question":"Where does John Smith work?","top_k":3}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["answer"] != "John Smith works at Tech Corp." {
		t.Fatalf("unexpected answer %v", payload["answer"])
	}
	if payload["query_type"] != "relational" {
		t.Fatalf("unexpected query_type %v", payload["query_type"])
	}
	confidence, _ := payload["confidence"].(map[string]any)
	if confidence["verdict"] != "accept" {
		t.Fatalf("unexpected verdict %v", confidence)
	}
	if _, ok := payload["kg_context"]; !ok {
		t.Fatalf("expected kg_context in payload")
	}
	if _, ok := payload["reasoning_steps"]; !ok {
		t.Fatalf("expected reasoning_steps in payload")
	}

	if answerer.topK != 3 {
		t.Fatalf("expected top_k forwarded, got %d", answerer.topK)
	}
	if !answerer.useHybrid {
		t.Fatalf("use_hybrid must default to true")
	}
}

func TestQueryHonorsUseHybridFalse(t *testing.T) {
	answerer := &answererFake{answer: acceptedAnswer()}
	handler := newTestRouter(nil, answerer, nil, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query",
		strings.NewReader(`{"question":"q","use_hybrid":false}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if answerer.useHybrid {
		t.Fatalf("use_hybrid=false must be forwarded")
	}
}

func TestQueryValidation(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, RouterConfig{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"blank question", `{"question":"   "}`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(tt.body))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, res.Code)
		}
	}
}

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "query", errors.New("empty question")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrTemporary, "generate", errors.New("llm offline")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		handler := newTestRouter(nil, &answererFake{err: tt.err}, nil, RouterConfig{})
		req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"q"}`))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tt.want {
			t.Errorf("error %v: expected %d, got %d", tt.err, tt.want, res.Code)
		}
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, RouterConfig{RateLimitRPS: 1, RateLimitBurst: 1})

	req1 := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestHealthzBypassesRateLimit(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, RouterConfig{RateLimitRPS: 1, RateLimitBurst: 1})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("healthz request %d expected 200, got %d", i, res.Code)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}
