package usecase

import (
	"math"
	"strings"
	"testing"

	"github.com/akozlov/graphrag/internal/core/domain"
)

func contextFromText(text string) domain.MergedContext {
	return domain.MergedContext{Blocks: []domain.ContextBlock{
		{Text: text, Source: domain.SourceVector, Ref: "c1"},
	}}
}

func TestScoreAnswerAcceptsGroundedAnswer(t *testing.T) {
	merged := contextFromText("John Smith works at Tech Corp in the engineering department.")
	hits := []domain.RetrievedChunk{
		{ChunkID: "c1", Score: 0.92, Text: "John Smith works at Tech Corp."},
		{ChunkID: "c2", Score: 0.81, Text: "Tech Corp is based in Berlin."},
		{ChunkID: "c3", Score: 0.76, Text: "The engineering department is large."},
	}

	report := ScoreAnswer(
		"John Smith works at Tech Corp in the engineering department of the company.",
		merged, hits,
		GuardConfig{Threshold: 0.4, MinContextLength: 50, MinAnswerLength: 60},
	)

	if report.Verdict != domain.VerdictAccept {
		t.Fatalf("expected accept, got %s (%s)", report.Verdict, report.Reason)
	}
	if report.Score < 0.4 {
		t.Fatalf("expected score >= threshold, got %.2f", report.Score)
	}
	if report.Components["rejection"] != 1 {
		t.Fatalf("expected rejection component 1, got %v", report.Components["rejection"])
	}
}

func TestScoreAnswerRefusalOverridesNumericScore(t *testing.T) {
	// Strong sources and long context would clear the threshold, but
	// the answer is an explicit refusal and must still be rejected.
	merged := contextFromText(strings.Repeat("highly relevant context. ", 40))
	hits := []domain.RetrievedChunk{
		{ChunkID: "c1", Score: 0.99},
		{ChunkID: "c2", Score: 0.98},
		{ChunkID: "c3", Score: 0.97},
	}

	report := ScoreAnswer(
		"There is insufficient information in the provided context to answer this.",
		merged, hits,
		GuardConfig{Threshold: 0.1},
	)

	if report.Verdict != domain.VerdictReject {
		t.Fatalf("refusal must force reject, got %s with score %.2f", report.Verdict, report.Score)
	}
	if report.Components["rejection"] != 0 {
		t.Fatalf("expected rejection component 0, got %v", report.Components["rejection"])
	}
}

func TestScoreAnswerRejectsBelowThreshold(t *testing.T) {
	merged := contextFromText("short")
	report := ScoreAnswer("completely unrelated words here", merged, nil, GuardConfig{Threshold: 0.6})

	if report.Verdict != domain.VerdictReject {
		t.Fatalf("expected reject below threshold, got %s", report.Verdict)
	}
}

func TestScoreAnswerClampsInconsistentSimilarity(t *testing.T) {
	merged := domain.MergedContext{Blocks: []domain.ContextBlock{
		{Text: "some context text", Source: domain.SourceVector, Ref: "c1"},
		{Text: "for the question", Source: domain.SourceVector, Ref: "c2"},
	}}
	hits := []domain.RetrievedChunk{
		{ChunkID: "c1", Score: -0.5},
		{ChunkID: "c2", Score: 1.7},
	}

	report := ScoreAnswer("some answer about the context", merged, hits, GuardConfig{})
	quality := report.Components["source_quality"]
	if quality < 0 || quality > 1 {
		t.Fatalf("source quality must be clamped to [0,1], got %v", quality)
	}
	// -0.5 clamps to 0, 1.7 clamps to 1, mean is 0.5.
	if math.Abs(quality-0.5) > 1e-9 {
		t.Fatalf("expected clamped mean 0.5, got %v", quality)
	}
}

func TestScoreAnswerIgnoresVectorHitsDroppedFromContext(t *testing.T) {
	// Relational merge under a tight budget: only graph relation
	// blocks survived, every vector chunk was dropped. The quality
	// component must not credit chunks the generator never saw.
	merged := domain.MergedContext{Blocks: []domain.ContextBlock{
		{Text: "John Smith --[WORKS_AT]--> Tech Corp", Source: domain.SourceGraphRelation, Ref: "John Smith-WORKS_AT->Tech Corp"},
		{Text: "Tech Corp --[LOCATED_IN]--> Berlin", Source: domain.SourceGraphRelation, Ref: "Tech Corp-LOCATED_IN->Berlin"},
	}}
	hits := []domain.RetrievedChunk{
		{ChunkID: "c1", Score: 0.95, Text: "John Smith works at Tech Corp."},
		{ChunkID: "c2", Score: 0.90, Text: "Tech Corp is located in Berlin."},
	}

	report := ScoreAnswer(
		"John Smith works at Tech Corp.",
		merged, hits,
		GuardConfig{Threshold: 0.6, MinContextLength: 50, MinAnswerLength: 100},
	)

	if got := report.Components["source_quality"]; got != 0 {
		t.Fatalf("expected source quality 0 with no vector blocks in context, got %v", got)
	}
	if report.Verdict != domain.VerdictReject {
		t.Fatalf("expected reject without included vector sources, got %s (score %.2f)", report.Verdict, report.Score)
	}
}

func TestScoreAnswerAveragesOnlyIncludedHits(t *testing.T) {
	merged := domain.MergedContext{Blocks: []domain.ContextBlock{
		{Text: "John Smith works at Tech Corp.", Source: domain.SourceVector, Ref: "c1"},
	}}
	hits := []domain.RetrievedChunk{
		{ChunkID: "c1", Score: 0.9},
		{ChunkID: "c2", Score: 0.1},
	}

	report := ScoreAnswer("John Smith works at Tech Corp.", merged, hits, GuardConfig{})
	if got := report.Components["source_quality"]; math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("expected mean over included hits 0.9, got %v", got)
	}
}

func TestScoreAnswerMeasuresLengthsInRunes(t *testing.T) {
	// 25 Cyrillic runes are 50 bytes; coverage must be 25/50, not 1.
	merged := contextFromText(strings.Repeat("п", 25))
	answer := strings.Repeat("о", 30)

	report := ScoreAnswer(answer, merged, nil, GuardConfig{
		Threshold:        0.4,
		MinContextLength: 50,
		MinAnswerLength:  60,
	})

	if got := report.Components["context_coverage"]; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected rune-based coverage 0.5, got %v", got)
	}
	if got := report.Components["answer_length"]; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected rune-based answer length 0.5, got %v", got)
	}
}

func TestScoreAnswerIsDeterministic(t *testing.T) {
	merged := contextFromText("John Smith works at Tech Corp.")
	hits := []domain.RetrievedChunk{{ChunkID: "c1", Score: 0.9}}

	first := ScoreAnswer("John Smith works at Tech Corp.", merged, hits, GuardConfig{})
	second := ScoreAnswer("John Smith works at Tech Corp.", merged, hits, GuardConfig{})

	if math.Abs(first.Score-second.Score) > 1e-12 {
		t.Fatalf("scores differ across identical calls: %v vs %v", first.Score, second.Score)
	}
	if first.Verdict != second.Verdict {
		t.Fatalf("verdicts differ across identical calls")
	}
}

func TestMatchesRejectionPatterns(t *testing.T) {
	cases := []struct {
		answer string
		want   bool
	}{
		{"I cannot answer that based on the context.", true},
		{"There is not enough information here.", true},
		{"This is unclear from the context provided.", true},
		{"John Smith works at Tech Corp.", false},
		{"The capital of France is Paris.", false},
	}
	for _, tc := range cases {
		if got := MatchesRejection(tc.answer); got != tc.want {
			t.Fatalf("MatchesRejection(%q) = %v, want %v", tc.answer, got, tc.want)
		}
	}
}

func TestTextOverlapIgnoresStopwordsAndShortTokens(t *testing.T) {
	overlap := textOverlap("the and for it is", "completely different content words")
	if overlap != 0 {
		t.Fatalf("stopword-only answer should have zero overlap, got %v", overlap)
	}

	full := textOverlap("quantum computing hardware", "quantum computing hardware")
	if full != 1 {
		t.Fatalf("identical significant tokens should overlap fully, got %v", full)
	}
}
