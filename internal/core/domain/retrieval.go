package domain

// RetrievedChunk is one vector-index hit: a stored chunk plus its
// similarity score, already normalized to [0,1].
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"content"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// Entity is a knowledge-graph node. Names are case-normalized for
// matching; the same name appearing in several documents merges into
// one entity.
type Entity struct {
	ID        string   `json:"entity_id"`
	Name      string   `json:"name"`
	Type      string   `json:"entity_type"`
	SourceIDs []string `json:"source_document_ids,omitempty"`
}

// Relation is a directed edge between two entities. Duplicates with
// identical (source, type, target) are collapsed on write.
type Relation struct {
	SourceName string   `json:"source_entity"`
	TargetName string   `json:"target_entity"`
	Type       string   `json:"relation_type"`
	SourceIDs  []string `json:"source_document_ids,omitempty"`
}

// GraphHits is the result of a bounded-depth traversal: reached
// entities, the relations used to reach them, and a human-readable
// hop trace kept for explainability only.
type GraphHits struct {
	Entities      []Entity   `json:"entities"`
	Relations     []Relation `json:"relations"`
	TraversalPath []string   `json:"traversal_path"`

	// RelationDepth[i] is the BFS depth at which Relations[i] was
	// discovered; it drives the relational merge ordering.
	RelationDepth []int `json:"-"`
}

func (g GraphHits) Empty() bool {
	return len(g.Entities) == 0 && len(g.Relations) == 0
}
