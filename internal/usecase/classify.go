package usecase

import (
	"strings"

	"scopevoice/internal/domain"
)

var interrogatives = map[string]struct{}{
	"what": {}, "whats": {}, "what's": {}, "who": {}, "whom": {}, "whose": {},
	"where": {}, "when": {}, "why": {}, "how": {}, "which": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "should": {}, "would": {}, "will": {}, "shall": {},
	"has": {}, "have": {}, "had": {}, "may": {}, "must": {},
}

var imperativePhrases = []string{
	"tell me", "show me", "give me", "find me", "explain", "describe",
	"summarize", "summarise", "list", "compare", "walk me through",
	"help me", "i need to know", "i want to know", "let me know",
}

// ClassifyQuery decides whether text is a question or a keyword search.
func ClassifyQuery(text string) domain.QueryKind {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return domain.QueryKindSearch
	}
	if strings.Contains(trimmed, "?") {
		return domain.QueryKindQuestion
	}

	words := strings.Fields(trimmed)
	first := strings.Trim(words[0], ",.;:!\"")
	if _, ok := interrogatives[first]; ok {
		return domain.QueryKindQuestion
	}

	padded := " " + strings.Join(words, " ") + " "
	for _, phrase := range imperativePhrases {
		// Single verbs like "list" only count when they lead the sentence.
		if strings.Contains(phrase, " ") {
			if strings.Contains(padded, " "+phrase+" ") {
				return domain.QueryKindQuestion
			}
			continue
		}
		if strings.HasPrefix(padded, " "+phrase+" ") || strings.Contains(padded, " please "+phrase+" ") {
			return domain.QueryKindQuestion
		}
	}
	return domain.QueryKindSearch
}
