package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

func TestDispatchQuestionUsesDocumentScope(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{resp: ports.RetrievalResponse{Passages: []domain.Passage{
		{Text: "The report is due Friday.", SourceName: "plan.pdf"},
		{Text: "   "},
		{Text: "Reviews happen Monday.", SourceName: "plan.pdf"},
		{Text: "Budget owner is Dana.", SourceName: "budget.xlsx"},
	}}}
	generator := &fakeGenerator{text: " It is due Friday [Source: plan.pdf]. "}
	statuses := fakeStatuses{"doc-1": {status: domain.DocumentStatusProcessed}}
	dispatcher := NewQueryDispatcher(retriever, generator, statuses, DispatcherConfig{ProjectID: "proj-1"}, nil)

	answer, err := dispatcher.Dispatch(context.Background(), DispatchRequest{
		Text:       " When is the report due ",
		Scope:      domain.ScopeDocument,
		DocumentID: "doc-1",
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	req := retriever.lastRequest()
	if req.ScopeID != "doc-1" || req.TopK != 5 || req.Query != "When is the report due" {
		t.Fatalf("unexpected retrieval request: %+v", req)
	}
	if answer.Kind != domain.QueryKindQuestion || answer.Scope.FellBack() {
		t.Fatalf("unexpected answer classification: %+v", answer)
	}
	if answer.Text != "It is due Friday [Source: plan.pdf]." || answer.NothingFound {
		t.Fatalf("unexpected answer text: %+v", answer)
	}
	if answer.RetrievedCount != 3 {
		t.Fatalf("expected blank passages to be dropped, got %d", answer.RetrievedCount)
	}
	if len(answer.Sources) != 2 || answer.Sources[0] != "plan.pdf" || answer.Sources[1] != "budget.xlsx" {
		t.Fatalf("expected deduplicated sources, got %v", answer.Sources)
	}
	if answer.QueryID == "" {
		t.Fatalf("expected query id")
	}

	gen := generator.lastRequest()
	if gen.Kind != domain.QueryKindQuestion || !strings.Contains(gen.Context, "[Source: plan.pdf]\nThe report is due Friday.") {
		t.Fatalf("unexpected generation request: %+v", gen)
	}
	if !strings.Contains(gen.Context, "[Source: budget.xlsx]") {
		t.Fatalf("expected every passage source to be tagged: %q", gen.Context)
	}
}

func TestDispatchSearchFallsBackToProject(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{resp: ports.RetrievalResponse{Passages: []domain.Passage{{Text: "Revenue grew 8%.", SourceName: "q3.pdf"}}}}
	generator := &fakeGenerator{text: "Revenue grew eight percent."}
	statuses := fakeStatuses{"doc-2": {status: domain.DocumentStatusProcessing}}
	dispatcher := NewQueryDispatcher(retriever, generator, statuses, DispatcherConfig{ProjectID: "proj-1"}, nil)

	answer, err := dispatcher.Dispatch(context.Background(), DispatchRequest{Text: "quarterly revenue", Scope: domain.ScopeDocument, DocumentID: "doc-2"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	req := retriever.lastRequest()
	if req.ScopeID != "proj-1" || req.TopK != 10 {
		t.Fatalf("expected project search with search top-k, got %+v", req)
	}
	if answer.Kind != domain.QueryKindSearch || generator.lastRequest().Kind != domain.QueryKindSearch {
		t.Fatalf("expected search classification, got %+v", answer)
	}
	if !answer.Scope.FellBack() || answer.Scope.Reason != reasonDocumentProcessing {
		t.Fatalf("expected fallback with processing reason, got %+v", answer.Scope)
	}
}

func TestDispatchNoResultsIsNotAnError(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{}
	generator := &fakeGenerator{text: "unused"}
	dispatcher := NewQueryDispatcher(retriever, generator, nil, DispatcherConfig{ProjectID: "proj-1"}, nil)

	answer, err := dispatcher.Dispatch(context.Background(), DispatchRequest{Text: "what is the warranty period", Scope: domain.ScopeProject})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !answer.NothingFound || answer.Text != NothingFoundText || answer.RetrievedCount != 0 {
		t.Fatalf("expected nothing-found answer, got %+v", answer)
	}
	if generator.callCount() != 0 {
		t.Fatalf("generation must be skipped without passages")
	}
}

func TestDispatchEmptyGenerationFallsBackToNothingFound(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{resp: ports.RetrievalResponse{Passages: []domain.Passage{{Text: "x", SourceName: "a"}}}}
	dispatcher := NewQueryDispatcher(retriever, &fakeGenerator{text: "  "}, nil, DispatcherConfig{}, nil)

	answer, err := dispatcher.Dispatch(context.Background(), DispatchRequest{Text: "what is x", Scope: domain.ScopeProject})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !answer.NothingFound || answer.Text != NothingFoundText {
		t.Fatalf("expected nothing-found fallback, got %+v", answer)
	}
}

func TestDispatchFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		text      string
		retriever *fakeRetriever
		generator *fakeGenerator
	}{
		{
			name:      "empty query",
			text:      "   ",
			retriever: &fakeRetriever{},
			generator: &fakeGenerator{},
		},
		{
			name:      "retrieval error",
			text:      "what is due",
			retriever: &fakeRetriever{err: errors.New("503")},
			generator: &fakeGenerator{},
		},
		{
			name:      "generation error",
			text:      "what is due",
			retriever: &fakeRetriever{resp: ports.RetrievalResponse{Passages: []domain.Passage{{Text: "Friday", SourceName: "a"}}}},
			generator: &fakeGenerator{err: errors.New("rate limited")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dispatcher := NewQueryDispatcher(tc.retriever, tc.generator, nil, DispatcherConfig{}, nil)
			_, err := dispatcher.Dispatch(context.Background(), DispatchRequest{Text: tc.text, Scope: domain.ScopeProject})
			if !errors.Is(err, ErrDispatch) {
				t.Fatalf("expected dispatch error, got %v", err)
			}
		})
	}
}

func TestResolveScopeIsTotal(t *testing.T) {
	t.Parallel()

	statuses := fakeStatuses{
		"ready":      {status: domain.DocumentStatusProcessed},
		"processing": {status: domain.DocumentStatusProcessing},
		"failed":     {status: domain.DocumentStatusFailed},
		"weird":      {status: domain.DocumentStatus("archived")},
		"missing":    {err: fmt.Errorf("lookup: %w", domain.ErrDocumentNotFound)},
		"broken":     {err: errors.New("timeout")},
	}
	dispatcher := NewQueryDispatcher(&fakeRetriever{}, &fakeGenerator{}, statuses, DispatcherConfig{}, nil)

	cases := []struct {
		name       string
		requested  domain.Scope
		documentID string
		resolved   domain.Scope
		reason     string
	}{
		{name: "project requested", requested: domain.ScopeProject, documentID: "ready", resolved: domain.ScopeProject},
		{name: "processed document", requested: domain.ScopeDocument, documentID: "ready", resolved: domain.ScopeDocument},
		{name: "no document", requested: domain.ScopeDocument, documentID: " ", resolved: domain.ScopeProject, reason: reasonNoDocument},
		{name: "processing", requested: domain.ScopeDocument, documentID: "processing", resolved: domain.ScopeProject, reason: reasonDocumentProcessing},
		{name: "failed", requested: domain.ScopeDocument, documentID: "failed", resolved: domain.ScopeProject, reason: reasonDocumentFailed},
		{name: "unknown status", requested: domain.ScopeDocument, documentID: "weird", resolved: domain.ScopeProject, reason: reasonStatusUnavailable},
		{name: "not found", requested: domain.ScopeDocument, documentID: "missing", resolved: domain.ScopeProject, reason: reasonDocumentMissing},
		{name: "lookup error", requested: domain.ScopeDocument, documentID: "broken", resolved: domain.ScopeProject, reason: reasonStatusUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := dispatcher.ResolveScope(context.Background(), tc.requested, tc.documentID)
			if got.Resolved != tc.resolved || got.Reason != tc.reason {
				t.Fatalf("unexpected selection: %+v", got)
			}
		})
	}
}

func TestResolveScopeWithoutStatusSourceTrustsDocument(t *testing.T) {
	t.Parallel()

	dispatcher := NewQueryDispatcher(&fakeRetriever{}, &fakeGenerator{}, nil, DispatcherConfig{}, nil)
	got := dispatcher.ResolveScope(context.Background(), domain.ScopeDocument, "doc-1")
	if got.Resolved != domain.ScopeDocument || got.FellBack() {
		t.Fatalf("unexpected selection: %+v", got)
	}
}

func TestBuildContextLimits(t *testing.T) {
	t.Parallel()

	passages := []domain.Passage{
		{Text: strings.Repeat("a", 40), SourceName: "one"},
		{Text: strings.Repeat("b", 40), SourceName: ""},
		{Text: strings.Repeat("c", 40), SourceName: "three"},
	}

	text, sources := buildContext(passages, 2, 1000)
	if strings.Contains(text, "ccc") || len(sources) != 2 || sources[1] != "Unknown source" {
		t.Fatalf("expected passage limit to apply: %q %v", text, sources)
	}

	text, sources = buildContext(passages, 3, 70)
	if !strings.Contains(text, "aaa") || strings.Contains(text, "bbb") || len(sources) != 1 {
		t.Fatalf("expected char budget to stop after the first passage: %q %v", text, sources)
	}
}

type fakeRetriever struct {
	resp ports.RetrievalResponse
	err  error

	mu       sync.Mutex
	requests []ports.RetrievalRequest
}

func (f *fakeRetriever) Retrieve(_ context.Context, req ports.RetrievalRequest) (ports.RetrievalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func (f *fakeRetriever) lastRequest() ports.RetrievalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ports.RetrievalRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type fakeGenerator struct {
	text string
	err  error

	mu       sync.Mutex
	requests []ports.AnswerRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req ports.AnswerRequest) (ports.AnswerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return ports.AnswerResponse{}, f.err
	}
	return ports.AnswerResponse{Text: f.text}, nil
}

func (f *fakeGenerator) lastRequest() ports.AnswerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ports.AnswerRequest{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type statusResult struct {
	status domain.DocumentStatus
	err    error
}

type fakeStatuses map[string]statusResult

func (f fakeStatuses) DocumentStatus(_ context.Context, documentID string) (domain.DocumentStatus, error) {
	result, ok := f[documentID]
	if !ok {
		return "", domain.ErrDocumentNotFound
	}
	return result.status, result.err
}
