package domain

import "unicode/utf8"

// QueryType steers the retrieval and merge policy for one question.
type QueryType string

const (
	QueryFactual    QueryType = "factual"
	QueryRelational QueryType = "relational"
	QueryReasoning  QueryType = "reasoning"
)

// ParseQueryType maps normalized classifier output onto the closed
// enum. Anything unrecognized falls back to factual, the least
// context-hungry default.
func ParseQueryType(s string) (QueryType, bool) {
	switch QueryType(s) {
	case QueryFactual, QueryRelational, QueryReasoning:
		return QueryType(s), true
	default:
		return QueryFactual, false
	}
}

// Classification is produced per request and never persisted.
type Classification struct {
	Type      QueryType `json:"query_type"`
	Rationale string    `json:"rationale"`
}

// BlockSource identifies where a context block came from.
type BlockSource string

const (
	SourceVector        BlockSource = "vector"
	SourceGraphRelation BlockSource = "graph_relation"
	SourceGraphEntity   BlockSource = "graph_entity"
)

// ContextBlock is one unit of merged context. Blocks are included or
// dropped whole; truncation never splits a block.
type ContextBlock struct {
	Text   string      `json:"text"`
	Source BlockSource `json:"source"`
	// Ref is the chunk id for vector blocks or a graph element
	// description for graph blocks.
	Ref string `json:"ref"`
}

// MergedContext is the ordered fusion of vector and graph results.
// Block order encodes the query-type priority policy.
type MergedContext struct {
	Blocks []ContextBlock `json:"blocks"`
}

func (m MergedContext) Empty() bool {
	return len(m.Blocks) == 0
}

// Text joins all blocks into the prompt context string.
func (m MergedContext) Text() string {
	total := 0
	for _, b := range m.Blocks {
		total += len(b.Text) + len(blockSeparator)
	}
	buf := make([]byte, 0, total)
	for i, b := range m.Blocks {
		if i > 0 {
			buf = append(buf, blockSeparator...)
		}
		buf = append(buf, b.Text...)
	}
	return string(buf)
}

// Length is the total character count of all block texts.
func (m MergedContext) Length() int {
	n := 0
	for _, b := range m.Blocks {
		n += len(b.Text)
	}
	return n
}

// RuneLength is the total rune count of all block texts. The guard
// uses it so multi-byte text is not measured differently from the
// rune-aware chunker.
func (m MergedContext) RuneLength() int {
	n := 0
	for _, b := range m.Blocks {
		n += utf8.RuneCountInString(b.Text)
	}
	return n
}

const blockSeparator = "\n\n---\n\n"

// Verdict is the accept/reject decision of the confidence guard.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

// ConfidenceReport is the composite confidence score with the
// per-component breakdown that produced it.
type ConfidenceReport struct {
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"component_scores"`
	Verdict    Verdict            `json:"verdict"`
	Reason     string             `json:"reason"`
}

// Answer is assembled once per query and never mutated afterwards.
type Answer struct {
	Text           string           `json:"answer"`
	Confidence     ConfidenceReport `json:"confidence"`
	QueryType      QueryType        `json:"query_type"`
	Sources        []RetrievedChunk `json:"sources"`
	KGContext      GraphHits        `json:"kg_context"`
	ReasoningSteps []string         `json:"reasoning_steps"`
}
