package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akozlov/graphrag/internal/core/domain"
)

type textExtractorFake struct {
	text string
	err  error
}

func (f *textExtractorFake) Extract(_ context.Context, _ *domain.Document) (string, error) {
	return f.text, f.err
}

type chunkerFake struct {
	size int
}

func (f *chunkerFake) Split(text string) []string {
	if f.size <= 0 {
		f.size = 40
	}
	var chunks []string
	for len(text) > f.size {
		chunks = append(chunks, text[:f.size])
		text = text[f.size:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

type processEmbedderFake struct {
	err   error
	short bool
}

func (f *processEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *processEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0, 1}, nil
}

type graphExtractorFake struct {
	entities  []domain.Entity
	relations []domain.Relation
	err       error
}

func (f *graphExtractorFake) ExtractGraph(context.Context, string) ([]domain.Entity, []domain.Relation, error) {
	return f.entities, f.relations, f.err
}

type graphWriterFake struct {
	writes   int
	writeErr error
	lastDoc  string
}

func (f *graphWriterFake) MatchEntities(context.Context, string) ([]domain.Entity, error) {
	return nil, nil
}

func (f *graphWriterFake) Neighbors(context.Context, string) ([]domain.Entity, []domain.Relation, error) {
	return nil, nil, nil
}

func (f *graphWriterFake) Write(_ context.Context, documentID string, _ []domain.Entity, _ []domain.Relation) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	f.lastDoc = documentID
	return nil
}

func seedUploadedDocument(t *testing.T, repo *documentRepoFake) *domain.Document {
	t.Helper()
	doc := &domain.Document{
		ID:          "doc-1",
		Filename:    "people.txt",
		MimeType:    "text/plain",
		StoragePath: "doc-1_people.txt",
		Status:      domain.StatusUploaded,
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func TestProcessByIDHappyPath(t *testing.T) {
	repo := newDocumentRepoFake()
	doc := seedUploadedDocument(t, repo)
	graph := &graphWriterFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&textExtractorFake{text: strings.Repeat("John Smith works at Tech Corp. ", 5)},
		&chunkerFake{size: 40},
		&processEmbedderFake{},
		&vectorIndexFake{},
		&graphExtractorFake{
			entities: []domain.Entity{
				{Name: "John Smith", Type: "Person"},
				{Name: "Tech Corp", Type: "Organization"},
			},
			relations: []domain.Relation{
				{SourceName: "John Smith", Type: "WORKS_AT", TargetName: "Tech Corp"},
			},
		},
		graph,
	)

	if err := uc.ProcessByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusReady {
		t.Fatalf("expected status ready, got %s", got.Status)
	}
	stats := repo.stats[doc.ID]
	if stats.Chunks == 0 {
		t.Fatalf("expected chunk count in stats, got %+v", stats)
	}
	if stats.Entities != 2 || stats.Relations != 1 {
		t.Fatalf("expected 2 entities and 1 relation, got %+v", stats)
	}
	if graph.writes != 1 || graph.lastDoc != doc.ID {
		t.Fatalf("expected one transactional graph write for %s", doc.ID)
	}
	if want := []domain.DocumentStatus{domain.StatusProcessing, domain.StatusReady}; len(repo.statuses) != 2 ||
		repo.statuses[0] != want[0] || repo.statuses[1] != want[1] {
		t.Fatalf("expected processing then ready, got %v", repo.statuses)
	}
}

func TestProcessByIDEmptyGraphSkipsWrite(t *testing.T) {
	repo := newDocumentRepoFake()
	doc := seedUploadedDocument(t, repo)
	graph := &graphWriterFake{writeErr: errors.New("must not be called")}
	uc := NewProcessDocumentUseCase(
		repo,
		&textExtractorFake{text: "plain prose with nothing extractable in lowercase only"},
		&chunkerFake{},
		&processEmbedderFake{},
		&vectorIndexFake{},
		&graphExtractorFake{},
		graph,
	)

	if err := uc.ProcessByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	stats := repo.stats[doc.ID]
	if stats.Entities != 0 || stats.Relations != 0 {
		t.Fatalf("expected zero graph stats, got %+v", stats)
	}
}

func TestProcessByIDEmptyTextMarksFailed(t *testing.T) {
	repo := newDocumentRepoFake()
	doc := seedUploadedDocument(t, repo)
	uc := NewProcessDocumentUseCase(
		repo,
		&textExtractorFake{text: ""},
		&chunkerFake{},
		&processEmbedderFake{},
		&vectorIndexFake{},
		&graphExtractorFake{},
		&graphWriterFake{},
	)

	err := uc.ProcessByID(context.Background(), doc.ID)
	if err == nil {
		t.Fatalf("expected error for empty extracted text")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), doc.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected status failed, got %s", got.Status)
	}
	if got.Error == "" {
		t.Fatalf("expected failure reason persisted on the document")
	}
}

func TestProcessByIDEmbeddingMismatchMarksFailed(t *testing.T) {
	repo := newDocumentRepoFake()
	doc := seedUploadedDocument(t, repo)
	uc := NewProcessDocumentUseCase(
		repo,
		&textExtractorFake{text: strings.Repeat("some text ", 20)},
		&chunkerFake{size: 40},
		&processEmbedderFake{short: true},
		&vectorIndexFake{},
		&graphExtractorFake{},
		&graphWriterFake{},
	)

	err := uc.ProcessByID(context.Background(), doc.ID)
	if err == nil {
		t.Fatalf("expected error for vectors/chunks mismatch")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	got, _ := repo.GetByID(context.Background(), doc.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected status failed, got %s", got.Status)
	}
}

func TestProcessByIDGraphWriteFailureMarksFailed(t *testing.T) {
	repo := newDocumentRepoFake()
	doc := seedUploadedDocument(t, repo)
	uc := NewProcessDocumentUseCase(
		repo,
		&textExtractorFake{text: strings.Repeat("John Smith works at Tech Corp. ", 5)},
		&chunkerFake{size: 40},
		&processEmbedderFake{},
		&vectorIndexFake{},
		&graphExtractorFake{entities: []domain.Entity{{Name: "John Smith", Type: "Person"}}},
		&graphWriterFake{writeErr: errors.New("neo4j unavailable")},
	)

	if err := uc.ProcessByID(context.Background(), doc.ID); err == nil {
		t.Fatalf("expected graph write failure to surface")
	}
	got, _ := repo.GetByID(context.Background(), doc.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected status failed, got %s", got.Status)
	}
	if _, ok := repo.stats[doc.ID]; ok {
		t.Fatalf("stats must not be saved for a failed pipeline")
	}
}

func TestProcessByIDUnknownDocumentReturnsNotFound(t *testing.T) {
	repo := newDocumentRepoFake()
	uc := NewProcessDocumentUseCase(
		repo,
		&textExtractorFake{text: "irrelevant"},
		&chunkerFake{},
		&processEmbedderFake{},
		&vectorIndexFake{},
		&graphExtractorFake{},
		&graphWriterFake{},
	)

	err := uc.ProcessByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error for unknown document")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
