package usecase

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/akozlov/graphrag/internal/core/domain"
)

// RejectionMessage is the canonical answer text for rejected queries.
const RejectionMessage = "I cannot provide a confident answer based on the available information. " +
	"The retrieved context does not contain sufficient details to answer this question accurately."

// rejectionPhrases mark an answer as an explicit refusal. A match
// forces a reject verdict regardless of the numeric score.
var rejectionPhrases = []string{
	"i cannot answer",
	"i cannot provide",
	"i don't know",
	"not enough information",
	"cannot determine",
	"unclear from the context",
	"insufficient information",
}

// GuardConfig holds the thresholds of the confidence guard.
type GuardConfig struct {
	Threshold        float64
	MinContextLength int
	MinAnswerLength  int
}

func (c GuardConfig) normalize() GuardConfig {
	out := c
	if out.Threshold <= 0 || out.Threshold > 1 {
		out.Threshold = 0.4
	}
	if out.MinContextLength <= 0 {
		out.MinContextLength = 50
	}
	if out.MinAnswerLength <= 0 {
		out.MinAnswerLength = 100
	}
	return out
}

// Guard component weights. The rejection component additionally acts
// as a hard override: an explicit refusal is never accepted.
const (
	weightSourceQuality   = 0.30
	weightTextOverlap     = 0.20
	weightRejection       = 0.20
	weightContextCoverage = 0.10
	weightSourceCount     = 0.10
	weightAnswerLength    = 0.10
)

// ScoreAnswer computes the composite confidence report for a generated
// answer. It is a pure function over its inputs so it can be tested
// without any external capability.
func ScoreAnswer(
	answer string,
	merged domain.MergedContext,
	vectorHits []domain.RetrievedChunk,
	cfg GuardConfig,
) domain.ConfidenceReport {
	cfg = cfg.normalize()

	contextText := merged.Text()
	refused := MatchesRejection(answer)

	// Quality is judged only on the hits whose chunks survived the
	// merge budget: the generator never saw the dropped ones.
	sourceQuality := meanSimilarity(includedVectorHits(merged, vectorHits))
	overlap := textOverlap(answer, contextText)

	rejection := 1.0
	if refused {
		rejection = 0.0
	}

	coverage := clamp01(float64(merged.RuneLength()) / float64(cfg.MinContextLength))
	sourceCount := clamp01(float64(len(vectorHits)) / 3.0)
	answerLength := clamp01(float64(utf8.RuneCountInString(answer)) / float64(cfg.MinAnswerLength))

	components := map[string]float64{
		"source_quality":   sourceQuality,
		"text_overlap":     overlap,
		"rejection":        rejection,
		"context_coverage": coverage,
		"source_count":     sourceCount,
		"answer_length":    answerLength,
	}

	score := weightSourceQuality*sourceQuality +
		weightTextOverlap*overlap +
		weightRejection*rejection +
		weightContextCoverage*coverage +
		weightSourceCount*sourceCount +
		weightAnswerLength*answerLength
	score = clamp01(score)

	verdict := domain.VerdictAccept
	reason := fmt.Sprintf("composite score %.2f meets threshold %.2f", score, cfg.Threshold)
	switch {
	case refused:
		verdict = domain.VerdictReject
		reason = "answer matches a refusal pattern"
	case score < cfg.Threshold:
		verdict = domain.VerdictReject
		reason = fmt.Sprintf("composite score %.2f below threshold %.2f", score, cfg.Threshold)
	}

	return domain.ConfidenceReport{
		Score:      score,
		Components: components,
		Verdict:    verdict,
		Reason:     reason,
	}
}

// MatchesRejection reports whether the answer is an explicit refusal.
func MatchesRejection(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range rejectionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// includedVectorHits filters retrieved hits down to those whose chunk
// is present among the merged vector blocks.
func includedVectorHits(merged domain.MergedContext, hits []domain.RetrievedChunk) []domain.RetrievedChunk {
	refs := make(map[string]struct{}, len(merged.Blocks))
	for _, b := range merged.Blocks {
		if b.Source == domain.SourceVector {
			refs[b.Ref] = struct{}{}
		}
	}
	if len(refs) == 0 {
		return nil
	}

	included := make([]domain.RetrievedChunk, 0, len(refs))
	for _, h := range hits {
		if _, ok := refs[h.ChunkID]; ok {
			included = append(included, h)
		}
	}
	return included
}

// meanSimilarity averages vector hit scores, clamping each to [0,1]
// so a scoring inconsistency upstream degrades instead of failing.
func meanSimilarity(hits []domain.RetrievedChunk) float64 {
	if len(hits) == 0 {
		return 0
	}
	sum := 0.0
	for _, h := range hits {
		sum += clamp01(h.Score)
	}
	return sum / float64(len(hits))
}

var overlapStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {},
	"that": {}, "was": {}, "were": {}, "are": {}, "been": {}, "have": {},
	"has": {}, "had": {}, "but": {}, "not": {},
}

// textOverlap is the Jaccard similarity of the significant-token sets
// of answer and context: how grounded the answer is in what was
// actually retrieved.
func textOverlap(answer, context string) float64 {
	a := toSignificantTokenSet(answer)
	c := toSignificantTokenSet(context)
	if len(a) == 0 || len(c) == 0 {
		return 0
	}

	intersection := 0
	for token := range a {
		if _, ok := c[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(c) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSignificantTokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, token := range splitAlphaNumLower(s) {
		if len(token) < 3 {
			continue
		}
		if _, stop := overlapStopwords[token]; stop {
			continue
		}
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
