package ports

import (
	"context"
	"io"

	"github.com/akozlov/graphrag/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIngestStats(ctx context.Context, id string, stats domain.IngestStats) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, domain.IngestEvent) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// VectorIndex indexes chunks and performs similarity search. Search
// results come back score-descending with ties broken by ascending
// chunk id; scores are normalized to [0,1]. An empty index yields an
// empty slice, not an error.
type VectorIndex interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
}

// GraphStore exposes the relationship-traversal primitives over the
// knowledge graph. Writes are transactional per document.
type GraphStore interface {
	MatchEntities(ctx context.Context, name string) ([]domain.Entity, error)
	Neighbors(ctx context.Context, entityID string) ([]domain.Entity, []domain.Relation, error)
	Write(ctx context.Context, documentID string, entities []domain.Entity, relations []domain.Relation) error
}

// GraphExtractor turns raw chunk text into entity and relation
// records for knowledge-graph construction.
type GraphExtractor interface {
	ExtractGraph(ctx context.Context, text string) ([]domain.Entity, []domain.Relation, error)
}

// QueryClassifier labels a question with one of the closed query
// types. Implementations must never fail the query: any capability
// failure degrades to the factual fallback.
type QueryClassifier interface {
	ClassifyQuery(ctx context.Context, question string) (domain.Classification, error)
}

// AnswerGenerator produces a grounded answer from the merged context.
type AnswerGenerator interface {
	GenerateGrounded(ctx context.Context, question, context string) (string, error)
}
