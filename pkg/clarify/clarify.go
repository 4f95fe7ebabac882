// Package clarify rephrases the current question on request without
// revealing rubric content.
package clarify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/oracle"
	"github.com/txn2/mcp-interviewer/pkg/question"
	"github.com/txn2/mcp-interviewer/pkg/textmatch"
)

const slogKeyError = "error"

// Source records where a hint came from.
type Source string

// Hint sources, in fallback order.
const (
	SourceOracle   Source = "oracle"
	SourceAuthored Source = "authored"
	SourceGeneric  Source = "generic"
	SourceRedacted Source = "redacted"
)

// GenericRephrase is the last-resort clarification.
const GenericRephrase = "Let me put it another way: think about what the question asks you to " +
	"explain, and describe it in your own words, step by step, as you would to a colleague."

const redaction = "…"

const historyTurns = 4

// Hint is a clarification reply.
type Hint struct {
	Text   string
	Source Source
}

// Service produces clarifications.
type Service struct {
	oracle oracle.Oracle
}

// New creates a Service. A nil oracle behaves like oracle.Disabled.
func New(o oracle.Oracle) *Service {
	if o == nil {
		o = oracle.Disabled{}
	}
	return &Service{oracle: o}
}

// Clarify rephrases q in response to request. The returned text never
// contains any of the rubric's required concepts: generated text that does
// is replaced by the question's authored rephrase, then by GenericRephrase,
// and as a last resort the concepts are redacted.
func (s *Service) Clarify(ctx context.Context, q *question.Question, request string, history []interview.Turn) Hint {
	guard := textmatch.NewMatcher(q.Rubric.Concepts())

	text, err := s.oracle.Complete(ctx, buildPrompt(q, request, history))
	switch {
	case err != nil:
		slog.Warn("clarification degraded", "question_id", q.ID, slogKeyError, err)
	case strings.TrimSpace(text) == "":
		slog.Warn("clarification degraded", "question_id", q.ID, slogKeyError, "empty oracle output")
	default:
		text = strings.TrimSpace(text)
		leaked := guard.Find(text)
		if len(leaked) == 0 {
			return Hint{Text: text, Source: SourceOracle}
		}
		slog.Info("clarification rejected by concept guard", "question_id", q.ID, "concepts", len(leaked))
	}

	return fallback(q, guard)
}

func fallback(q *question.Question, guard *textmatch.Matcher) Hint {
	if r := strings.TrimSpace(q.Rephrase); r != "" && !guard.Any(r) {
		return Hint{Text: r, Source: SourceAuthored}
	}
	if !guard.Any(GenericRephrase) {
		return Hint{Text: GenericRephrase, Source: SourceGeneric}
	}
	return Hint{Text: guard.Redact(GenericRephrase, redaction), Source: SourceRedacted}
}

func buildPrompt(q *question.Question, request string, history []interview.Turn) string {
	var b strings.Builder
	b.WriteString("You are a technical interviewer. The candidate asked for clarification of the question below.\n")
	b.WriteString("Rephrase the question so it is easier to understand.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Do NOT give hints, partial answers, examples of correct answers or solution steps.\n")
	b.WriteString("- Do NOT name the concepts the answer should contain.\n")
	b.WriteString("- Keep the same scope and difficulty. Reply with one or two sentences only.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", q.Prompt)

	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	fmt.Fprintf(&b, "Candidate request: %q\n", request)
	return b.String()
}
