package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

var ErrDispatch = errors.New("query dispatch failed")

// NothingFoundText is spoken when retrieval returns no passages.
const NothingFoundText = "I couldn't find anything about that in your documents."

const (
	reasonNoDocument         = "No document is selected, so the whole project was searched."
	reasonDocumentProcessing = "The selected document is still processing, so the whole project was searched."
	reasonDocumentFailed     = "The selected document failed to process, so the whole project was searched."
	reasonDocumentMissing    = "The selected document no longer exists, so the whole project was searched."
	reasonStatusUnavailable  = "The selected document's status is unavailable, so the whole project was searched."
)

// DispatcherConfig controls result counts and context shaping.
type DispatcherConfig struct {
	ProjectID       string
	QuestionTopK    int
	SearchTopK      int
	ContextPassages int
	MaxContextChars int
}

// DispatchRequest is one finalized query.
type DispatchRequest struct {
	Text       string
	Scope      domain.Scope
	DocumentID string
}

// QueryDispatcher classifies queries, resolves scope and calls the retrieval
// and answer-generation services.
type QueryDispatcher struct {
	retriever ports.Retriever
	generator ports.AnswerGenerator
	statuses  ports.DocumentStatusSource
	cfg       DispatcherConfig
	log       *slog.Logger
}

func NewQueryDispatcher(
	retriever ports.Retriever,
	generator ports.AnswerGenerator,
	statuses ports.DocumentStatusSource,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *QueryDispatcher {
	if cfg.QuestionTopK <= 0 {
		cfg.QuestionTopK = 5
	}
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = 10
	}
	if cfg.ContextPassages <= 0 {
		cfg.ContextPassages = 5
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 12000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryDispatcher{
		retriever: retriever,
		generator: generator,
		statuses:  statuses,
		cfg:       cfg,
		log:       logger.With("component", "QueryDispatcher"),
	}
}

// Dispatch answers one query. No results is not an error.
func (d *QueryDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (domain.Answer, error) {
	text := strings.TrimSpace(req.Text)
	answer := domain.Answer{
		QueryID: uuid.NewString(),
		Query:   text,
		Kind:    ClassifyQuery(text),
	}
	log := d.log.With("query_id", answer.QueryID)
	if text == "" {
		return domain.Answer{}, fmt.Errorf("%w: empty query", ErrDispatch)
	}

	answer.Scope = d.ResolveScope(ctx, req.Scope, req.DocumentID)
	scopeID := d.cfg.ProjectID
	if answer.Scope.Resolved == domain.ScopeDocument {
		scopeID = req.DocumentID
	}
	if answer.Scope.FellBack() {
		log.Info("scope fell back to project", "reason", answer.Scope.Reason)
	}

	topK := d.cfg.SearchTopK
	if answer.Kind == domain.QueryKindQuestion {
		topK = d.cfg.QuestionTopK
	}

	retrieved, err := d.retriever.Retrieve(ctx, ports.RetrievalRequest{
		ScopeID: scopeID,
		Query:   text,
		TopK:    topK,
	})
	if err != nil {
		log.Warn("retrieval failed", "error", err)
		return domain.Answer{}, fmt.Errorf("%w: retrieval: %w", ErrDispatch, err)
	}

	passages := usablePassages(retrieved.Passages)
	if len(passages) == 0 {
		answer.Text = NothingFoundText
		answer.NothingFound = true
		log.Info("no passages retrieved", "kind", answer.Kind, "scope", answer.Scope.Resolved)
		return answer, nil
	}

	contextText, sources := buildContext(passages, d.cfg.ContextPassages, d.cfg.MaxContextChars)
	generated, err := d.generator.Generate(ctx, ports.AnswerRequest{
		Query:   text,
		Context: contextText,
		Kind:    answer.Kind,
	})
	if err != nil {
		log.Warn("answer generation failed", "error", err)
		return domain.Answer{}, fmt.Errorf("%w: generation: %w", ErrDispatch, err)
	}

	answer.Text = strings.TrimSpace(generated.Text)
	answer.RetrievedCount = len(passages)
	answer.Sources = sources
	if answer.Text == "" {
		answer.Text = NothingFoundText
		answer.NothingFound = true
	}
	log.Info("query answered", "kind", answer.Kind, "scope", answer.Scope.Resolved, "retrieved", answer.RetrievedCount)
	return answer, nil
}

// ResolveScope picks the retrieval scope. It never fails: any doubt about
// the document degrades to project scope with a reason.
func (d *QueryDispatcher) ResolveScope(ctx context.Context, requested domain.Scope, documentID string) domain.ScopeSelection {
	if requested != domain.ScopeDocument {
		return domain.ScopeSelection{Requested: domain.ScopeProject, Resolved: domain.ScopeProject}
	}
	fallback := func(reason string) domain.ScopeSelection {
		return domain.ScopeSelection{Requested: domain.ScopeDocument, Resolved: domain.ScopeProject, Reason: reason}
	}

	if strings.TrimSpace(documentID) == "" {
		return fallback(reasonNoDocument)
	}
	if d.statuses == nil {
		return domain.ScopeSelection{Requested: domain.ScopeDocument, Resolved: domain.ScopeDocument}
	}

	status, err := d.statuses.DocumentStatus(ctx, documentID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return fallback(reasonDocumentMissing)
	}
	if err != nil {
		d.log.Warn("document status lookup failed", "document_id", documentID, "error", err)
		return fallback(reasonStatusUnavailable)
	}
	switch status {
	case domain.DocumentStatusProcessed:
		return domain.ScopeSelection{Requested: domain.ScopeDocument, Resolved: domain.ScopeDocument}
	case domain.DocumentStatusProcessing:
		return fallback(reasonDocumentProcessing)
	case domain.DocumentStatusFailed:
		return fallback(reasonDocumentFailed)
	default:
		return fallback(reasonStatusUnavailable)
	}
}

func usablePassages(passages []domain.Passage) []domain.Passage {
	out := make([]domain.Passage, 0, len(passages))
	for _, p := range passages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// buildContext tags the top passages with their source names.
func buildContext(passages []domain.Passage, limit int, maxChars int) (string, []string) {
	if len(passages) > limit {
		passages = passages[:limit]
	}

	var b strings.Builder
	seen := make(map[string]struct{}, len(passages))
	sources := make([]string, 0, len(passages))
	for i, p := range passages {
		source := strings.TrimSpace(p.SourceName)
		if source == "" {
			source = "Unknown source"
		}
		block := fmt.Sprintf("[Source: %s]\n%s", source, strings.TrimSpace(p.Text))
		if i > 0 && b.Len()+len(block) > maxChars {
			break
		}
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(block)
		if _, ok := seen[source]; !ok {
			seen[source] = struct{}{}
			sources = append(sources, source)
		}
	}
	return b.String(), sources
}
