package usecase

import (
	"testing"

	"scopevoice/internal/domain"
)

func TestClassifyQuery(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.QueryKind{
		"What is the deadline":                 domain.QueryKindQuestion,
		"deadline?":                            domain.QueryKindQuestion,
		"how do I reset the device":            domain.QueryKindQuestion,
		"Does the contract allow sublicensing": domain.QueryKindQuestion,
		"tell me about the budget":             domain.QueryKindQuestion,
		"can you walk me through phase two":    domain.QueryKindQuestion,
		"summarize chapter three":              domain.QueryKindQuestion,
		"please list the risks":                domain.QueryKindQuestion,
		"budget":                               domain.QueryKindSearch,
		"quarterly revenue figures":            domain.QueryKindSearch,
		"shopping list":                        domain.QueryKindSearch,
		"the explanation of benefits":          domain.QueryKindSearch,
		"":                                     domain.QueryKindSearch,
		"   ":                                  domain.QueryKindSearch,
	}

	for text, want := range cases {
		if got := ClassifyQuery(text); got != want {
			t.Fatalf("ClassifyQuery(%q) = %q, want %q", text, got, want)
		}
	}
}
