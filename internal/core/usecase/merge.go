package usecase

import (
	"fmt"
	"sort"

	"github.com/akozlov/graphrag/internal/core/domain"
)

// ContextMerger fuses vector hits and graph hits into one ordered
// context using a query-type-dependent priority policy. Block order
// is the core design decision of the pipeline:
//
//	factual:    vector blocks (score descending), then graph blocks
//	relational: relation blocks (shallowest depth first), entity
//	            summaries, then vector blocks
//	reasoning:  vector and graph blocks interleaved, vector first
type ContextMerger struct {
	charBudget int
}

func NewContextMerger(charBudget int) *ContextMerger {
	if charBudget <= 0 {
		charBudget = 8000
	}
	return &ContextMerger{charBudget: charBudget}
}

func (m *ContextMerger) Merge(
	queryType domain.QueryType,
	vectorHits []domain.RetrievedChunk,
	graphHits domain.GraphHits,
) domain.MergedContext {
	vectorBlocks := buildVectorBlocks(vectorHits)
	graphBlocks := buildGraphBlocks(graphHits)

	var ordered []domain.ContextBlock
	switch queryType {
	case domain.QueryRelational:
		ordered = append(ordered, graphBlocks...)
		ordered = append(ordered, vectorBlocks...)
	case domain.QueryReasoning:
		ordered = interleave(vectorBlocks, graphBlocks)
	default: // factual
		ordered = append(ordered, vectorBlocks...)
		ordered = append(ordered, graphBlocks...)
	}

	return domain.MergedContext{Blocks: m.applyBudget(ordered)}
}

// applyBudget keeps blocks in priority order until the next one would
// overflow the total character budget; everything from that point on
// is dropped whole. Blocks are never truncated mid-text.
func (m *ContextMerger) applyBudget(blocks []domain.ContextBlock) []domain.ContextBlock {
	used := 0
	for i, b := range blocks {
		if used+len(b.Text) > m.charBudget {
			return blocks[:i]
		}
		used += len(b.Text)
	}
	return blocks
}

func buildVectorBlocks(hits []domain.RetrievedChunk) []domain.ContextBlock {
	// Defensive re-sort: retrievers already return descending order
	// with chunk-id tie-break, but merge ordering must not depend on it.
	sorted := make([]domain.RetrievedChunk, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ChunkID < sorted[j].ChunkID
	})

	out := make([]domain.ContextBlock, 0, len(sorted))
	for i, hit := range sorted {
		out = append(out, domain.ContextBlock{
			Text:   fmt.Sprintf("[Vector Chunk %d]\n%s", i+1, hit.Text),
			Source: domain.SourceVector,
			Ref:    hit.ChunkID,
		})
	}
	return out
}

func buildGraphBlocks(hits domain.GraphHits) []domain.ContextBlock {
	type depthRelation struct {
		rel   domain.Relation
		depth int
		order int
	}

	rels := make([]depthRelation, len(hits.Relations))
	for i, rel := range hits.Relations {
		depth := 1
		if i < len(hits.RelationDepth) {
			depth = hits.RelationDepth[i]
		}
		rels[i] = depthRelation{rel: rel, depth: depth, order: i}
	}
	// Shallowest hops first; insertion order within a depth.
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].depth != rels[j].depth {
			return rels[i].depth < rels[j].depth
		}
		return rels[i].order < rels[j].order
	})

	out := make([]domain.ContextBlock, 0, len(rels)+len(hits.Entities))
	for _, dr := range rels {
		desc := fmt.Sprintf("%s --[%s]--> %s", dr.rel.SourceName, dr.rel.Type, dr.rel.TargetName)
		out = append(out, domain.ContextBlock{
			Text:   "Knowledge Graph Relation: " + desc,
			Source: domain.SourceGraphRelation,
			Ref:    desc,
		})
	}
	for _, e := range hits.Entities {
		out = append(out, domain.ContextBlock{
			Text:   fmt.Sprintf("Related Entity: %s (Type: %s)", e.Name, e.Type),
			Source: domain.SourceGraphEntity,
			Ref:    e.ID,
		})
	}
	return out
}

// interleave alternates one vector block and one graph block starting
// with vector; when one source runs out, the remainder of the other
// follows in its own priority order.
func interleave(vector, graph []domain.ContextBlock) []domain.ContextBlock {
	out := make([]domain.ContextBlock, 0, len(vector)+len(graph))
	i, j := 0, 0
	for i < len(vector) || j < len(graph) {
		if i < len(vector) {
			out = append(out, vector[i])
			i++
		}
		if j < len(graph) {
			out = append(out, graph[j])
			j++
		}
	}
	return out
}
