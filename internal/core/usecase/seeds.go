package usecase

import (
	"strings"
	"unicode"
)

// interrogative and auxiliary words that start questions; a
// capitalized span beginning with one of these is not an entity name.
var seedStopwords = map[string]struct{}{
	"who": {}, "what": {}, "where": {}, "when": {}, "why": {}, "how": {},
	"which": {}, "whose": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "the": {},
	"a": {}, "an": {}, "tell": {}, "explain": {}, "describe": {}, "list": {},
	"compare": {}, "summarize": {},
}

// extractSeedEntities pulls candidate entity names out of a question
// by collecting spans of capitalized tokens. Order is irrelevant and
// duplicates are harmless: the traverser deduplicates visited nodes.
func extractSeedEntities(question string) []string {
	words := strings.FieldsFunc(question, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	seen := make(map[string]struct{})
	var seeds []string
	var span []string

	flush := func() {
		if len(span) == 0 {
			return
		}
		name := strings.Join(span, " ")
		span = nil
		if len(name) < 3 {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		seeds = append(seeds, name)
	}

	for _, w := range words {
		runes := []rune(w)
		if unicode.IsUpper(runes[0]) {
			if _, stop := seedStopwords[strings.ToLower(w)]; stop && len(span) == 0 {
				continue
			}
			span = append(span, w)
			continue
		}
		flush()
	}
	flush()

	const maxSeeds = 10
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}
	return seeds
}
