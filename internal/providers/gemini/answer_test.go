package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

func TestNewAnswerGeneratorRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewAnswerGenerator(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestAnswerGeneratorCallsGenerateContent(t *testing.T) {
	t.Parallel()

	var path string
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Section two covers "},{"text":"the budget [Source: plan.pdf]."}]}}]}`)
	}))
	defer server.Close()

	gen, err := NewAnswerGenerator(context.Background(), Config{APIKey: "k", BaseURL: server.URL, Model: "gemini-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := gen.Generate(context.Background(), ports.AnswerRequest{
		Query:   "budget",
		Context: "[Source: plan.pdf]\nBudget details.",
		Kind:    domain.QueryKindSearch,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Text != "Section two covers the budget [Source: plan.pdf]." {
		t.Fatalf("unexpected answer: %q", resp.Text)
	}
	if !strings.Contains(path, "gemini-test:generateContent") {
		t.Fatalf("unexpected request path: %s", path)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction in request: %+v", body)
	}
}

func TestAnswerGeneratorEmptyCandidates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	gen, err := NewAnswerGenerator(context.Background(), Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gen.Generate(context.Background(), ports.AnswerRequest{Query: "q"}); err == nil {
		t.Fatalf("expected empty answer error")
	}
}
