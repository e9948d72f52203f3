package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/akozlov/graphrag/internal/core/domain"
	"github.com/akozlov/graphrag/internal/core/ports"
)

// GraphTraverser performs bounded-depth breadth-first expansion over
// the knowledge graph starting from entities matched by seed names.
type GraphTraverser struct {
	graph ports.GraphStore
}

func NewGraphTraverser(graph ports.GraphStore) *GraphTraverser {
	return &GraphTraverser{graph: graph}
}

type frontierNode struct {
	entity domain.Entity
	depth  int
}

// Traverse expands from seed-matched entities up to maxDepth hops.
// A visited set keyed by entity id guarantees termination on cyclic
// graphs. No seed match yields empty hits, never an error.
func (t *GraphTraverser) Traverse(
	ctx context.Context,
	seedNames []string,
	maxDepth int,
	maxResults int,
) (domain.GraphHits, error) {
	if len(seedNames) == 0 || maxDepth <= 0 {
		return domain.GraphHits{}, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	visited := make(map[string]struct{})
	seenRelations := make(map[string]struct{})
	var hits domain.GraphHits
	var queue []frontierNode

	var matchedSeeds []string
	for _, name := range seedNames {
		entities, err := t.graph.MatchEntities(ctx, name)
		if err != nil {
			return domain.GraphHits{}, fmt.Errorf("match seed entity %q: %w", name, err)
		}
		for _, e := range entities {
			if _, ok := visited[e.ID]; ok {
				continue
			}
			visited[e.ID] = struct{}{}
			queue = append(queue, frontierNode{entity: e, depth: 0})
			hits.Entities = append(hits.Entities, e)
			matchedSeeds = append(matchedSeeds, e.Name)
		}
	}
	if len(queue) == 0 {
		return domain.GraphHits{}, nil
	}

	hits.TraversalPath = append(hits.TraversalPath,
		fmt.Sprintf("Started from entities: %s", strings.Join(matchedSeeds, ", ")))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth {
			continue
		}
		if len(hits.Entities) >= maxResults {
			break
		}

		neighbors, relations, err := t.graph.Neighbors(ctx, current.entity.ID)
		if err != nil {
			return domain.GraphHits{}, fmt.Errorf("expand entity %q: %w", current.entity.Name, err)
		}

		for _, rel := range relations {
			key := rel.SourceName + "\x00" + rel.Type + "\x00" + rel.TargetName
			if _, ok := seenRelations[key]; ok {
				continue
			}
			seenRelations[key] = struct{}{}
			hits.Relations = append(hits.Relations, rel)
			hits.RelationDepth = append(hits.RelationDepth, current.depth+1)
			hits.TraversalPath = append(hits.TraversalPath,
				fmt.Sprintf("%s --[%s]--> %s", rel.SourceName, rel.Type, rel.TargetName))
		}

		for _, n := range neighbors {
			if _, ok := visited[n.ID]; ok {
				continue
			}
			if len(hits.Entities) >= maxResults {
				break
			}
			visited[n.ID] = struct{}{}
			hits.Entities = append(hits.Entities, n)
			queue = append(queue, frontierNode{entity: n, depth: current.depth + 1})
		}
	}

	return hits, nil
}
