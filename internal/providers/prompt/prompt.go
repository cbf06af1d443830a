// Package prompt builds the instructions shared by every answer provider.
package prompt

import (
	"fmt"
	"strings"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

const questionInstruction = `You answer questions about the user's documents. Use only the context passages below.
Cite the source of each fact as [Source: name]. If the context does not contain the answer, say you could not find it.
Your answer will be read aloud, so keep it short and avoid lists, tables and markdown.`

const searchInstruction = `You summarize where a topic appears in the user's documents. Use only the context passages below.
Name each relevant source as [Source: name] and describe briefly what it says about the topic.
Your summary will be read aloud, so keep it short and avoid lists, tables and markdown.`

// System returns the system instruction for a query kind.
func System(kind domain.QueryKind) string {
	if kind == domain.QueryKindSearch {
		return searchInstruction
	}
	return questionInstruction
}

// User returns the user turn carrying the retrieved context and the query.
func User(req ports.AnswerRequest) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(strings.TrimSpace(req.Context))
	b.WriteString("\n\n")
	if req.Kind == domain.QueryKindSearch {
		fmt.Fprintf(&b, "Topic: %s", strings.TrimSpace(req.Query))
	} else {
		fmt.Fprintf(&b, "Question: %s", strings.TrimSpace(req.Query))
	}
	return b.String()
}
