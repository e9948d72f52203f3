package bootstrap

import (
	"context"
	"fmt"

	"github.com/akozlov/graphrag/internal/config"
	"github.com/akozlov/graphrag/internal/core/ports"
	"github.com/akozlov/graphrag/internal/core/usecase"
	"github.com/akozlov/graphrag/internal/infrastructure/chunking"
	"github.com/akozlov/graphrag/internal/infrastructure/extractor"
	neo4jstore "github.com/akozlov/graphrag/internal/infrastructure/graph/neo4j"
	"github.com/akozlov/graphrag/internal/infrastructure/kgextract"
	"github.com/akozlov/graphrag/internal/infrastructure/llm/ollama"
	"github.com/akozlov/graphrag/internal/infrastructure/queue/nats"
	"github.com/akozlov/graphrag/internal/infrastructure/repository/postgres"
	"github.com/akozlov/graphrag/internal/infrastructure/resilience"
	"github.com/akozlov/graphrag/internal/infrastructure/storage/localfs"
	"github.com/akozlov/graphrag/internal/infrastructure/vector/qdrant"
)

// App holds the wired application graph shared by cmd/api and cmd/worker.
type App struct {
	Config config.Config

	Queue ports.MessageQueue
	Repo  ports.DocumentRepository

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	QueryUC   ports.QuestionAnswerer

	closeFn func(context.Context)
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	// Transport calls (LLM, queue publish) get exactly one retry.
	executor := resilience.NewExecutor(resilience.SingleRetryConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	graph, err := neo4jstore.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, "")
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init graph store: %w", err)
	}

	llmClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		ResilienceExecutor: executor,
	})
	classifier := ollama.NewClassifier(llmClient)
	embedder := ollama.NewEmbedder(llmClient)
	generator := ollama.NewGenerator(llmClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	textExtractor := extractor.NewDispatcher(storage)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	graphExtractor := kgextract.New()

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, textExtractor, chunker, embedder, vectorDB, graphExtractor, graph)
	queryUC := usecase.NewHybridQueryUseCase(classifier, embedder, vectorDB, graph, generator, usecase.QueryConfig{
		TopKVector:        cfg.TopKVector,
		TopKGraph:         cfg.TopKGraph,
		KGMaxDepth:        cfg.KGMaxDepth,
		ContextCharBudget: cfg.ContextCharBudget,
		Guard: usecase.GuardConfig{
			Threshold:        cfg.ConfidenceThreshold,
			MinContextLength: cfg.MinContextLength,
			MinAnswerLength:  cfg.MinAnswerLength,
		},
	})

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		QueryUC:   queryUC,

		closeFn: func(closeCtx context.Context) {
			queue.Close()
			_ = graph.Close(closeCtx)
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close(ctx context.Context) {
	if a.closeFn != nil {
		a.closeFn(ctx)
	}
}
