package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/akozlov/graphrag/internal/core/domain"
	"github.com/akozlov/graphrag/internal/core/ports"
)

// QueryConfig is the immutable retrieval/validation configuration
// passed into the orchestrator at construction.
type QueryConfig struct {
	TopKVector        int
	TopKGraph         int
	KGMaxDepth        int
	ContextCharBudget int
	Guard             GuardConfig
}

func (c QueryConfig) normalize() QueryConfig {
	out := c
	if out.TopKVector <= 0 {
		out.TopKVector = 5
	}
	if out.TopKGraph <= 0 {
		out.TopKGraph = 10
	}
	if out.KGMaxDepth <= 0 {
		out.KGMaxDepth = 2
	}
	if out.ContextCharBudget <= 0 {
		out.ContextCharBudget = 8000
	}
	return out
}

// HybridQueryUseCase runs one question through the full pipeline:
// Classifying -> Retrieving -> Merging -> Generating -> Validating.
// There are no backward transitions; recoverable component failures
// degrade to empty results and are logged into the reasoning steps.
type HybridQueryUseCase struct {
	classifier ports.QueryClassifier
	embedder   ports.Embedder
	vectorDB   ports.VectorIndex
	traverser  *GraphTraverser
	merger     *ContextMerger
	generator  ports.AnswerGenerator
	cfg        QueryConfig
}

func NewHybridQueryUseCase(
	classifier ports.QueryClassifier,
	embedder ports.Embedder,
	vectorDB ports.VectorIndex,
	graph ports.GraphStore,
	generator ports.AnswerGenerator,
	cfg QueryConfig,
) *HybridQueryUseCase {
	cfg = cfg.normalize()
	return &HybridQueryUseCase{
		classifier: classifier,
		embedder:   embedder,
		vectorDB:   vectorDB,
		traverser:  NewGraphTraverser(graph),
		merger:     NewContextMerger(cfg.ContextCharBudget),
		generator:  generator,
		cfg:        cfg,
	}
}

func (uc *HybridQueryUseCase) Query(
	ctx context.Context,
	question string,
	useHybrid bool,
	topK int,
) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query", fmt.Errorf("empty question"))
	}
	if topK <= 0 {
		topK = uc.cfg.TopKVector
	}

	var steps []string

	// Classifying. A classifier failure must never abort retrieval:
	// it degrades to the factual fallback.
	classification := uc.classify(ctx, question, &steps)

	// Retrieving. Vector search and graph traversal depend only on
	// the question, so they run concurrently and join before merging.
	vectorHits, graphHits := uc.retrieve(ctx, question, classification.Type, useHybrid, topK, &steps)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Merging.
	merged := uc.merger.Merge(classification.Type, vectorHits, graphHits)
	steps = append(steps, fmt.Sprintf("Merged context: %d blocks, %d characters", len(merged.Blocks), merged.Length()))

	// No context means no grounded answer is possible: skip the
	// generation call entirely and reject deterministically.
	if merged.Empty() {
		steps = append(steps, "Empty merged context - rejecting without generation")
		return &domain.Answer{
			Text: RejectionMessage,
			Confidence: domain.ConfidenceReport{
				Score:      0,
				Components: map[string]float64{},
				Verdict:    domain.VerdictReject,
				Reason:     "no retrieved context",
			},
			QueryType:      classification.Type,
			Sources:        vectorHits,
			KGContext:      graphHits,
			ReasoningSteps: steps,
		}, nil
	}

	// Generating. A transport failure here is terminal: there is no
	// salvageable answer without the generation capability.
	steps = append(steps, "Generating answer from merged context")
	generated, err := uc.generator.GenerateGrounded(ctx, question, merged.Text())
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	// Validating.
	report := ScoreAnswer(generated, merged, vectorHits, uc.cfg.Guard)
	steps = append(steps, fmt.Sprintf("Confidence score: %.2f (%s)", report.Score, report.Verdict))

	answerText := generated
	if report.Verdict == domain.VerdictReject {
		// The original text stays in the reasoning log for
		// explainability but is not surfaced as the answer.
		steps = append(steps, "Answer rejected: "+report.Reason)
		steps = append(steps, "Rejected generated text: "+generated)
		answerText = RejectionMessage
	}

	return &domain.Answer{
		Text:           answerText,
		Confidence:     report,
		QueryType:      classification.Type,
		Sources:        vectorHits,
		KGContext:      graphHits,
		ReasoningSteps: steps,
	}, nil
}

func (uc *HybridQueryUseCase) classify(ctx context.Context, question string, steps *[]string) domain.Classification {
	classification, err := uc.classifier.ClassifyQuery(ctx, question)
	if err != nil {
		classification = domain.Classification{
			Type:      domain.QueryFactual,
			Rationale: "classification unavailable, defaulting to factual",
		}
		*steps = append(*steps, "Query classification failed - falling back to factual")
		return classification
	}
	*steps = append(*steps, fmt.Sprintf("Query classified as: %s", classification.Type))
	return classification
}

// retrieve runs vector search and, for relational/reasoning hybrid
// queries, graph traversal concurrently. Either branch failing yields
// empty results for that branch; only context cancellation aborts.
func (uc *HybridQueryUseCase) retrieve(
	ctx context.Context,
	question string,
	queryType domain.QueryType,
	useHybrid bool,
	topK int,
	steps *[]string,
) ([]domain.RetrievedChunk, domain.GraphHits) {
	wantGraph := useHybrid && (queryType == domain.QueryRelational || queryType == domain.QueryReasoning)

	var (
		vectorHits []domain.RetrievedChunk
		vectorErr  error
		graphHits  domain.GraphHits
		graphErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorHits, vectorErr = uc.searchVector(gctx, question, topK)
		return nil
	})
	if wantGraph {
		g.Go(func() error {
			seeds := extractSeedEntities(question)
			if len(seeds) == 0 {
				return nil
			}
			graphHits, graphErr = uc.traverser.Traverse(gctx, seeds, uc.cfg.KGMaxDepth, uc.cfg.TopKGraph)
			return nil
		})
	}
	_ = g.Wait()

	if vectorErr != nil {
		*steps = append(*steps, "Vector retrieval failed - continuing without vector context")
		vectorHits = nil
	} else {
		*steps = append(*steps, fmt.Sprintf("Retrieved %d chunks from vector index", len(vectorHits)))
	}

	switch {
	case !useHybrid:
		*steps = append(*steps, "Hybrid retrieval disabled - vector search only")
	case !wantGraph:
		*steps = append(*steps, "Factual query - prioritizing vector search over knowledge graph")
	case graphErr != nil:
		*steps = append(*steps, "Knowledge graph retrieval failed - using vector search only")
		graphHits = domain.GraphHits{}
	case graphHits.Empty():
		*steps = append(*steps, "No matching entities in knowledge graph")
	default:
		*steps = append(*steps, fmt.Sprintf("Retrieved %d entities and %d relations from knowledge graph",
			len(graphHits.Entities), len(graphHits.Relations)))
	}

	return vectorHits, graphHits
}

func (uc *HybridQueryUseCase) searchVector(ctx context.Context, question string, topK int) ([]domain.RetrievedChunk, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := uc.vectorDB.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	return hits, nil
}
