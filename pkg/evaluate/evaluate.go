// Package evaluate grades answers against question rubrics.
//
// Each criterion is satisfied when its required concepts appear in the
// answer, or, for paraphrase-tolerant criteria, when the oracle judges the
// answer to express the criterion in other words. The score is the sum of
// the weights of satisfied criteria, so adding matched concepts can never
// lower it.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/oracle"
	"github.com/txn2/mcp-interviewer/pkg/question"
	"github.com/txn2/mcp-interviewer/pkg/textmatch"
)

const slogKeyError = "error"

// Default thresholds and fan-out.
const (
	DefaultHighThreshold = 0.75
	DefaultLowThreshold  = 0.4
	DefaultConcurrency   = 4

	scoreEpsilon = 1e-9
)

// CriterionResult explains how one criterion was judged.
type CriterionResult struct {
	Deterministic bool
	Semantic      bool
	Satisfied     bool
}

// Engine evaluates answers.
type Engine struct {
	oracle      oracle.Oracle
	high, low   float64
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds sets the Correct and PartiallyCorrect lower bounds.
func WithThresholds(high, low float64) Option {
	return func(e *Engine) {
		e.high, e.low = high, low
	}
}

// WithConcurrency bounds how many semantic checks run at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an Engine. A nil oracle behaves like oracle.Disabled.
func New(o oracle.Oracle, opts ...Option) *Engine {
	if o == nil {
		o = oracle.Disabled{}
	}
	e := &Engine{
		oracle:      o,
		high:        DefaultHighThreshold,
		low:         DefaultLowThreshold,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate grades answer against r. It never fails; when semantic checks
// cannot run the verdict is computed from concept matching alone and marked
// Degraded.
func (e *Engine) Evaluate(ctx context.Context, answer string, r question.Rubric) interview.Verdict {
	v, _ := e.EvaluateDetailed(ctx, answer, r)
	return v
}

// EvaluateDetailed is Evaluate with per-criterion results.
func (e *Engine) EvaluateDetailed(ctx context.Context, answer string, r question.Rubric) (interview.Verdict, []CriterionResult) {
	results := make([]CriterionResult, len(r.Criteria))
	for i, c := range r.Criteria {
		results[i].Deterministic = conceptsPresent(answer, c)
		results[i].Satisfied = results[i].Deterministic
	}

	degraded := make([]bool, len(r.Criteria))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, c := range r.Criteria {
		if results[i].Satisfied || !c.ParaphraseTolerant {
			continue
		}
		g.Go(func() error {
			ok, err := e.semantic(ctx, answer, c)
			if err != nil {
				slog.Warn("semantic check degraded", "criterion", i, slogKeyError, err)
				degraded[i] = true
				return nil
			}
			results[i].Semantic = ok
			results[i].Satisfied = ok
			return nil
		})
	}
	_ = g.Wait()

	v := interview.Verdict{Total: len(r.Criteria)}
	for i, c := range r.Criteria {
		if results[i].Satisfied {
			v.Score += c.Weight
			v.Satisfied++
		}
		if degraded[i] {
			v.Degraded = true
		}
	}
	v.Outcome = e.outcome(v.Score)
	v.Feedback = feedback(v)
	return v, results
}

func (e *Engine) outcome(score float64) interview.Outcome {
	switch {
	case score+scoreEpsilon >= e.high:
		return interview.OutcomeCorrect
	case score+scoreEpsilon >= e.low:
		return interview.OutcomePartiallyCorrect
	default:
		return interview.OutcomeIncorrect
	}
}

// conceptsPresent is the deterministic check of a criterion.
func conceptsPresent(answer string, c question.Criterion) bool {
	m := textmatch.NewMatcher(c.RequiredConcepts)
	if m.Len() == 0 {
		return false
	}
	found := len(m.Find(answer))
	if c.Match == question.MatchAny {
		return found > 0
	}
	return found == m.Len()
}

func (e *Engine) semantic(ctx context.Context, answer string, c question.Criterion) (bool, error) {
	raw, err := e.oracle.Complete(ctx, semanticPrompt(answer, c))
	if err != nil {
		return false, err
	}
	ok, parsed := oracle.BoolField(raw, "satisfied")
	if !parsed {
		return false, fmt.Errorf("unparsable semantic verdict: %.80q", raw)
	}
	return ok, nil
}

func semanticPrompt(answer string, c question.Criterion) string {
	var b strings.Builder
	b.WriteString("You are grading one point of a candidate's answer in a technical interview.\n")
	fmt.Fprintf(&b, "Grading point: %s\n", c.Description)
	if len(c.RequiredConcepts) > 0 {
		fmt.Fprintf(&b, "Key ideas: %s\n", strings.Join(c.RequiredConcepts, ", "))
	}
	fmt.Fprintf(&b, "Candidate answer: %q\n\n", answer)
	b.WriteString("Does the answer express this point, possibly in different words? Ignore spelling and style.\n")
	b.WriteString(`Return ONLY JSON: {"satisfied": true} or {"satisfied": false}`)
	return b.String()
}

func feedback(v interview.Verdict) string {
	switch v.Outcome {
	case interview.OutcomeCorrect:
		if v.Satisfied == v.Total {
			return "Good answer. You covered the key points."
		}
		return fmt.Sprintf("Good answer. You covered %d of %d key points.", v.Satisfied, v.Total)
	case interview.OutcomePartiallyCorrect:
		return fmt.Sprintf("You're on the right track: you covered %d of %d key points, but some important aspects are missing.",
			v.Satisfied, v.Total)
	default:
		return "That answer misses the key points of the question."
	}
}
