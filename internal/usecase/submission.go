package usecase

import (
	"strings"
	"time"
	"unicode"
)

// SubmissionRecord remembers the last submitted utterance.
type SubmissionRecord struct {
	LastSubmittedText string
	SubmittedAt       time.Time
}

// IsDuplicate reports whether text equals the last submission or one of the
// two is a trimmed substring of the other.
func (r SubmissionRecord) IsDuplicate(text string) bool {
	if r.LastSubmittedText == "" {
		return false
	}
	return similarUtterance(r.LastSubmittedText, text)
}

// Record stores text as the latest submission.
func (r *SubmissionRecord) Record(text string, at time.Time) {
	r.LastSubmittedText = text
	r.SubmittedAt = at
}

// Reset forgets the last submission.
func (r *SubmissionRecord) Reset() {
	*r = SubmissionRecord{}
}

func similarUtterance(a, b string) bool {
	na := normalizeUtterance(a)
	nb := normalizeUtterance(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func normalizeUtterance(text string) string {
	text = strings.ToLower(text)
	text = strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.Join(strings.Fields(text), " ")
}
