package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/akozlov/graphrag/internal/core/domain"
	"github.com/akozlov/graphrag/internal/core/ports"
)

// ProcessDocumentUseCase turns an uploaded document into searchable
// state: chunks in the vector index and entities/relations in the
// knowledge graph. Graph writes are transactional per document, so a
// failed extraction never leaves half-written relations behind.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectorDB  ports.VectorIndex
	kgExtract ports.GraphExtractor
	graph     ports.GraphStore
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorIndex,
	kgExtract ports.GraphExtractor,
	graph ports.GraphStore,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectorDB:  vectorDB,
		kgExtract: kgExtract,
		graph:     graph,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	stats, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveIngestStats(ctx, documentID, stats); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("save ingest stats: %w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save ingest stats: %w", err)
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (domain.IngestStats, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("fetch document by id: %w", err)
	}

	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return domain.IngestStats{}, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}

	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return domain.IngestStats{}, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.IngestStats{}, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	if err := uc.vectorDB.IndexChunks(ctx, doc, chunks, vectors); err != nil {
		return domain.IngestStats{}, fmt.Errorf("index chunks in vector db: %w", err)
	}

	entities, relations, err := uc.kgExtract.ExtractGraph(ctx, text)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("extract entities and relations: %w", err)
	}
	if len(entities) > 0 || len(relations) > 0 {
		if err := uc.graph.Write(ctx, doc.ID, entities, relations); err != nil {
			return domain.IngestStats{}, fmt.Errorf("write knowledge graph: %w", err)
		}
	}

	return domain.IngestStats{
		Chunks:    len(chunks),
		Entities:  len(entities),
		Relations: len(relations),
	}, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
