package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/akozlov/graphrag/internal/core/domain"
)

type documentRepoFake struct {
	docs        map[string]*domain.Document
	createErr   error
	statuses    []domain.DocumentStatus
	errMessages []string
	stats       map[string]domain.IngestStats
	statsErr    error
}

func newDocumentRepoFake() *documentRepoFake {
	return &documentRepoFake{
		docs:  make(map[string]*domain.Document),
		stats: make(map[string]domain.IngestStats),
	}
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copied := *doc
	return &copied, nil
}

func (f *documentRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.statuses = append(f.statuses, status)
	f.errMessages = append(f.errMessages, errMessage)
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		doc.Error = errMessage
	}
	return nil
}

func (f *documentRepoFake) SaveIngestStats(_ context.Context, id string, stats domain.IngestStats) error {
	if f.statsErr != nil {
		return f.statsErr
	}
	f.stats[id] = stats
	return nil
}

type objectStorageFake struct {
	saved   map[string][]byte
	saveErr error
}

func newObjectStorageFake() *objectStorageFake {
	return &objectStorageFake{saved: make(map[string][]byte)}
}

func (f *objectStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = buf
	return nil
}

func (f *objectStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	buf, ok := f.saved[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

type messageQueueFake struct {
	published  []string
	publishErr error
}

func (f *messageQueueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *messageQueueFake) SubscribeDocumentIngested(context.Context, func(context.Context, domain.IngestEvent) error) error {
	return nil
}

func TestUploadPersistsAndPublishes(t *testing.T) {
	repo := newDocumentRepoFake()
	storage := newObjectStorageFake()
	queue := &messageQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "report q3.pdf", "application/pdf", strings.NewReader("%PDF-1.4 data"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected generated document id")
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", doc.Status)
	}
	if doc.Filename != "report q3.pdf" {
		t.Fatalf("original filename must be preserved, got %q", doc.Filename)
	}
	if !strings.HasSuffix(doc.StoragePath, "report_q3.pdf") {
		t.Fatalf("expected sanitized storage key, got %q", doc.StoragePath)
	}
	if _, ok := storage.saved[doc.StoragePath]; !ok {
		t.Fatalf("document bytes not saved under %q", doc.StoragePath)
	}
	if _, err := repo.GetByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("document metadata not persisted: %v", err)
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("expected one ingestion event for %s, got %v", doc.ID, queue.published)
	}
}

func TestUploadRejectsEmptyFilename(t *testing.T) {
	repo := newDocumentRepoFake()
	storage := newObjectStorageFake()
	queue := &messageQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "   ", "text/plain", strings.NewReader("hello"))
	if err == nil {
		t.Fatalf("expected error for empty filename")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(storage.saved) != 0 {
		t.Fatalf("nothing should be saved for a rejected upload")
	}
}

func TestUploadResolvesMimeTypeFromExtension(t *testing.T) {
	repo := newDocumentRepoFake()
	storage := newObjectStorageFake()
	queue := &messageQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "paper.pdf", "", strings.NewReader("%PDF-1.4 data"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.MimeType != "application/pdf" {
		t.Fatalf("expected mime type resolved from extension, got %q", doc.MimeType)
	}

	doc, err = uc.Upload(context.Background(), "notes.xyzunknown", "application/octet-stream", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.MimeType != "application/octet-stream" {
		t.Fatalf("unknown extension must keep the binary default, got %q", doc.MimeType)
	}
}

func TestUploadPublishFailureMarksDocumentFailed(t *testing.T) {
	repo := newDocumentRepoFake()
	storage := newObjectStorageFake()
	queue := &messageQueueFake{publishErr: errors.New("nats unavailable")}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "doc.txt", "text/plain", strings.NewReader("hello"))
	if err == nil {
		t.Fatalf("expected publish failure to surface")
	}
	if len(repo.statuses) != 1 || repo.statuses[0] != domain.StatusFailed {
		t.Fatalf("document must be marked failed after publish failure, got %v", repo.statuses)
	}
}

func TestUploadStorageFailureSkipsRepoAndQueue(t *testing.T) {
	repo := newDocumentRepoFake()
	storage := newObjectStorageFake()
	storage.saveErr = errors.New("disk full")
	queue := &messageQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "doc.txt", "text/plain", strings.NewReader("hello"))
	if err == nil {
		t.Fatalf("expected storage failure to surface")
	}
	if len(repo.docs) != 0 {
		t.Fatalf("no metadata should be written after storage failure")
	}
	if len(queue.published) != 0 {
		t.Fatalf("no event should be published after storage failure")
	}
}

func TestUploadRepoFailureSkipsQueue(t *testing.T) {
	repo := newDocumentRepoFake()
	repo.createErr = errors.New("connection reset")
	storage := newObjectStorageFake()
	queue := &messageQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "doc.txt", "text/plain", strings.NewReader("hello"))
	if err == nil {
		t.Fatalf("expected repo failure to surface")
	}
	if len(queue.published) != 0 {
		t.Fatalf("no event should be published after repo failure")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report q3.pdf", "report_q3.pdf"},
		{"../../etc/passwd", "passwd"},
		{"data (final).xlsx", "data__final_.xlsx"},
		{"простой.txt", "_______.txt"},
		{"", "document.bin"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
