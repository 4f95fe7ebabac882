// Package intent classifies user utterances into the closed set of
// interview intents. A deterministic rule tier keyed by conversation state
// runs first; the oracle is consulted only when the rules are inconclusive.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/oracle"
)

const slogKeyError = "error"

// Tier records which tier produced a classification.
type Tier string

// Classification tiers.
const (
	TierRule     Tier = "rule"
	TierOracle   Tier = "oracle"
	TierFallback Tier = "fallback"
)

// Context is the conversation context a classification may use. Concepts
// are the rubric's required concepts of the current question; they are never
// sent to the oracle.
type Context struct {
	State          interview.State
	QuestionPrompt string
	Concepts       []string
	History        []interview.Turn
}

// Result is a classification.
type Result struct {
	Intent interview.Intent
	Tier   Tier

	// Reason refines OffTopic results from the rule tier.
	Reason string
}

// Degraded reports whether the oracle tier failed and the result is the
// Unintelligible fallback.
func (r Result) Degraded() bool {
	return r.Tier == TierFallback
}

// Classifier implements the two-tier classification.
type Classifier struct {
	oracle       oracle.Oracle
	parseRetries int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithParseRetries sets how many times an unparsable oracle reply is
// retried with a corrective instruction. The default is one.
func WithParseRetries(n int) Option {
	return func(c *Classifier) {
		c.parseRetries = max(0, n)
	}
}

// New creates a Classifier. A nil oracle behaves like oracle.Disabled.
func New(o oracle.Oracle, opts ...Option) *Classifier {
	if o == nil {
		o = oracle.Disabled{}
	}
	c := &Classifier{oracle: o, parseRetries: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the intent of utterance. It never fails: oracle errors,
// timeouts and unparsable replies yield Unintelligible with TierFallback.
func (c *Classifier) Classify(ctx context.Context, utterance string, cc Context) Result {
	if r, ok := applyRules(utterance, cc); ok {
		slog.Debug("intent classified", "tier", TierRule, "intent", r.intent, "state", cc.State)
		return Result{Intent: r.intent, Tier: TierRule, Reason: r.reason}
	}

	prompt := buildPrompt(utterance, cc)
	for attempt := 0; attempt <= c.parseRetries; attempt++ {
		raw, err := c.oracle.Complete(ctx, prompt)
		if err != nil {
			slog.Warn("intent classification degraded", "state", cc.State, slogKeyError, err)
			return Result{Intent: interview.IntentUnintelligible, Tier: TierFallback}
		}
		if in, ok := ParseLabel(raw); ok {
			in = constrain(in, cc.State)
			slog.Debug("intent classified", "tier", TierOracle, "intent", in, "state", cc.State)
			return Result{Intent: in, Tier: TierOracle}
		}
		prompt = buildPrompt(utterance, cc) + "\n\n" + invalidOutputNotice
	}

	slog.Warn("intent classification degraded", "state", cc.State, slogKeyError, "unparsable oracle output")
	return Result{Intent: interview.IntentUnintelligible, Tier: TierFallback}
}

// constrain applies state restrictions to oracle labels. Before the
// interview starts only readiness is meaningful.
func constrain(in interview.Intent, state interview.State) interview.Intent {
	if state == interview.StateAwaitingReady &&
		in != interview.IntentPositiveReady && in != interview.IntentUnintelligible {
		return interview.IntentOffTopic
	}
	return in
}

var labelAliases = map[string]interview.Intent{
	"positiveready":  interview.IntentPositiveReady,
	"ready":          interview.IntentPositiveReady,
	"clarifyrequest": interview.IntentClarifyRequest,
	"clarify":        interview.IntentClarifyRequest,
	"clarification":  interview.IntentClarifyRequest,
	"answer":         interview.IntentAnswer,
	"offtopic":       interview.IntentOffTopic,
	"unintelligible": interview.IntentUnintelligible,
}

// ParseLabel maps oracle output to an intent. It accepts a JSON object with
// an "intent" field or a bare label, in any case and with or without
// separators.
func ParseLabel(raw string) (interview.Intent, bool) {
	label, ok := oracle.StringField(raw, "intent")
	if !ok {
		label = strings.TrimSpace(raw)
		if strings.Contains(label, "\n") || len(strings.Fields(label)) > maxLabelWords {
			return "", false
		}
	}
	key := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return -1
	}, label)
	in, found := labelAliases[key]
	return in, found
}

const invalidOutputNotice = "The previous output was invalid. Return ONLY valid JSON matching the schema."

const (
	historyTurns  = 6
	maxLabelWords = 2
)

func describeState(s interview.State) string {
	switch s {
	case interview.StateAwaitingReady:
		return "The interviewer has welcomed the candidate and asked whether they are ready to begin."
	case interview.StateAwaitingAnswer, interview.StateAwaitingClarificationAck:
		return "The interviewer has asked a question and is waiting for the candidate's answer."
	default:
		return "The interview is over."
	}
}

func buildPrompt(utterance string, cc Context) string {
	var b strings.Builder
	b.WriteString("You label a candidate's message in a technical interview on computer science fundamentals.\n")
	b.WriteString(describeState(cc.State))
	b.WriteString("\n")
	if cc.QuestionPrompt != "" {
		fmt.Fprintf(&b, "Current question: %s\n", cc.QuestionPrompt)
	}

	history := cc.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}

	fmt.Fprintf(&b, "Candidate message: %q\n\n", utterance)
	b.WriteString(`Choose exactly one label:
- PositiveReady: the candidate agrees to start or continue.
- ClarifyRequest: the candidate asks for the question to be explained or rephrased.
- Answer: the candidate attempts to answer the question.
- OffTopic: the message is unrelated to the interview, or asks for the solution or for a verdict.
- Unintelligible: the message cannot be understood.

Return ONLY JSON: {"intent": "<label>"}`)
	return b.String()
}
