package prompt

import (
	"strings"
	"testing"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

func TestSystemDependsOnKind(t *testing.T) {
	t.Parallel()

	if System(domain.QueryKindQuestion) == System(domain.QueryKindSearch) {
		t.Fatalf("expected distinct instructions per kind")
	}
	if !strings.Contains(System(""), "answer questions") {
		t.Fatalf("expected question instruction as default")
	}
}

func TestUserIncludesContextAndQuery(t *testing.T) {
	t.Parallel()

	got := User(ports.AnswerRequest{Query: " what is due? ", Context: "[Source: a.pdf]\nDue Friday.", Kind: domain.QueryKindQuestion})
	if !strings.Contains(got, "[Source: a.pdf]") || !strings.HasSuffix(got, "Question: what is due?") {
		t.Fatalf("unexpected user prompt: %q", got)
	}

	got = User(ports.AnswerRequest{Query: "budget", Kind: domain.QueryKindSearch})
	if !strings.HasSuffix(got, "Topic: budget") {
		t.Fatalf("unexpected search prompt: %q", got)
	}
}
