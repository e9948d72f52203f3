package kgextract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/akozlov/graphrag/internal/core/domain"
)

// Extractor mines entities and relations from document text with
// pattern rules. It trades recall for determinism: the same text
// always yields the same graph, which keeps re-ingestion idempotent.
type Extractor struct {
	minMentions int
}

func New() *Extractor {
	return &Extractor{minMentions: 1}
}

// NewWithMinMentions keeps only entities mentioned at least n times,
// which filters one-off capitalized noise in large documents.
func NewWithMinMentions(n int) *Extractor {
	if n < 1 {
		n = 1
	}
	return &Extractor{minMentions: n}
}

var (
	// Capitalized spans: one or more capitalized words, allowing
	// inner connectors like "of" ("University of Helsinki").
	entityPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9&.\-]*(?:(?: (?:of|for|de))? [A-Z][a-zA-Z0-9&.\-]*)*\b`)

	// capSpan matches a run of capitalized words and stops at the
	// first lowercase word, so a match never crosses into the verb
	// of the next clause.
	capSpan = `[A-Z][\w&\-]*(?: [A-Z][\w&\-]*)*`

	relationPatterns = []struct {
		re      *regexp.Regexp
		relType string
	}{
		{regexp.MustCompile(`(` + capSpan + `)\s+works?\s+(?:at|for)\s+(` + capSpan + `)`), "WORKS_AT"},
		{regexp.MustCompile(`(` + capSpan + `)\s+(?:is\s+)?(?:located|based|headquartered)\s+in\s+(` + capSpan + `)`), "LOCATED_IN"},
		{regexp.MustCompile(`(` + capSpan + `)\s+(?:was\s+)?founded\s+by\s+(` + capSpan + `)`), "FOUNDED_BY"},
		{regexp.MustCompile(`(` + capSpan + `)\s+is\s+(?:a\s+)?part\s+of\s+(` + capSpan + `)`), "PART_OF"},
		{regexp.MustCompile(`(` + capSpan + `)\s+is\s+an?\s+(` + capSpan + `)`), "IS_A"},
	}

	organizationSuffixes = []string{
		"Corp", "Corporation", "Inc", "Ltd", "LLC", "GmbH", "Company",
		"University", "Institute", "Agency", "Group", "Bank", "Labs",
	}

	// Sentence-initial words that look like entity starts but are not.
	extractStopwords = map[string]struct{}{
		"The": {}, "This": {}, "That": {}, "These": {}, "Those": {},
		"A": {}, "An": {}, "It": {}, "In": {}, "On": {}, "At": {},
		"As": {}, "By": {}, "For": {}, "From": {}, "With": {}, "When": {},
		"Where": {}, "While": {}, "After": {}, "Before": {}, "However": {},
		"There": {}, "They": {}, "He": {}, "She": {}, "We": {}, "I": {},
	}
)

func (e *Extractor) ExtractGraph(_ context.Context, text string) ([]domain.Entity, []domain.Relation, error) {
	mentions := e.countMentions(text)

	names := make([]string, 0, len(mentions))
	for name, count := range mentions {
		if count >= e.minMentions {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entities := make([]domain.Entity, 0, len(names))
	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		entities = append(entities, domain.Entity{
			Name: name,
			Type: guessType(name),
		})
		known[name] = struct{}{}
	}

	relations := e.extractRelations(text, known)
	return entities, relations, nil
}

func (e *Extractor) countMentions(text string) map[string]int {
	mentions := make(map[string]int)
	for _, match := range entityPattern.FindAllString(text, -1) {
		name := trimSpan(match)
		if name == "" {
			continue
		}
		mentions[name]++
	}
	return mentions
}

// trimSpan drops leading stopwords and rejects spans that are too
// short to be a real entity name.
func trimSpan(span string) string {
	words := strings.Fields(span)
	for len(words) > 0 {
		if _, stop := extractStopwords[words[0]]; !stop {
			break
		}
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	name := strings.Join(words, " ")
	if len(name) < 3 {
		return ""
	}
	if _, stop := extractStopwords[name]; stop {
		return ""
	}
	return name
}

func (e *Extractor) extractRelations(text string, known map[string]struct{}) []domain.Relation {
	var relations []domain.Relation
	seen := make(map[string]struct{})

	for _, pattern := range relationPatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			source := trimSpan(strings.TrimSpace(match[1]))
			target := trimSpan(strings.TrimSpace(match[2]))
			if source == "" || target == "" || source == target {
				continue
			}
			if _, ok := known[source]; !ok {
				continue
			}
			if _, ok := known[target]; !ok {
				continue
			}

			key := source + "\x00" + pattern.relType + "\x00" + target
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			relations = append(relations, domain.Relation{
				SourceName: source,
				Type:       pattern.relType,
				TargetName: target,
			})
		}
	}
	return relations
}

func guessType(name string) string {
	for _, suffix := range organizationSuffixes {
		if strings.HasSuffix(name, suffix) || strings.Contains(name, " "+suffix+" ") {
			return "Organization"
		}
	}
	words := strings.Fields(name)
	if len(words) == 2 || len(words) == 3 {
		return "Person"
	}
	return "Concept"
}
