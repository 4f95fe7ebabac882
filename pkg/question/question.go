// Package question defines interview questions, their grading rubrics and
// the read-only Bank the engine looks them up from.
package question

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Topic is a CS-fundamentals subject area.
type Topic string

// Supported topics.
const (
	TopicOOP  Topic = "OOP"
	TopicOS   Topic = "OS"
	TopicDBMS Topic = "DBMS"
	TopicCN   Topic = "CN"
)

// Topics lists every topic in tie-break order.
var Topics = []Topic{TopicOOP, TopicOS, TopicDBMS, TopicCN}

// Valid reports whether t is a supported topic.
func (t Topic) Valid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// Difficulty bounds.
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// ClampDifficulty bounds d to the supported scale.
func ClampDifficulty(d int) int {
	return max(MinDifficulty, min(MaxDifficulty, d))
}

// Kind is the style of a question.
type Kind string

// Question kinds.
const (
	KindConceptual Kind = "conceptual"
	KindCode       Kind = "code"
	KindDesign     Kind = "design"
)

// Match controls how many required concepts a criterion needs.
type Match string

// Match modes. The zero value behaves like MatchAll.
const (
	MatchAll Match = "all"
	MatchAny Match = "any"
)

// Criterion is one weighted grading point of a rubric.
type Criterion struct {
	Description        string   `yaml:"description" json:"description"`
	Weight             float64  `yaml:"weight" json:"weight"`
	RequiredConcepts   []string `yaml:"required_concepts" json:"required_concepts"`
	Match              Match    `yaml:"match,omitempty" json:"match,omitempty"`
	ParaphraseTolerant bool     `yaml:"paraphrase_tolerant" json:"paraphrase_tolerant"`
}

// Rubric is the grading scheme of a question. Rubrics are never
// shown to the user.
type Rubric struct {
	Criteria []Criterion `yaml:"criteria" json:"criteria"`
}

const weightTolerance = 1e-6

// Validate checks that the rubric has criteria and that the weights sum to
// one. The returned error wraps ErrRubricMissing.
func (r Rubric) Validate() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("%w: no criteria", ErrRubricMissing)
	}
	var sum float64
	for i, c := range r.Criteria {
		if c.Weight <= 0 {
			return fmt.Errorf("%w: criterion %d has non-positive weight", ErrRubricMissing, i)
		}
		sum += c.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f", ErrRubricMissing, sum)
	}
	return nil
}

// Concepts returns every required concept of the rubric, deduplicated, in
// criterion order.
func (r Rubric) Concepts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.Criteria {
		for _, k := range c.RequiredConcepts {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Question is an immutable interview question.
type Question struct {
	ID         string `yaml:"id" json:"id"`
	Topic      Topic  `yaml:"topic" json:"topic"`
	Difficulty int    `yaml:"difficulty" json:"difficulty"`
	Kind       Kind   `yaml:"kind" json:"kind"`
	Prompt     string `yaml:"prompt" json:"prompt"`

	// Rephrase is an authored restatement used when a generated
	// clarification cannot be used.
	Rephrase string `yaml:"rephrase" json:"rephrase"`

	// FollowUps lists questions asked after a partially correct answer.
	FollowUps []string `yaml:"follow_ups" json:"follow_ups"`

	// FollowUpOnly questions are never selected as main questions.
	FollowUpOnly bool `yaml:"follow_up_only" json:"follow_up_only"`

	Rubric Rubric `yaml:"rubric" json:"rubric"`
}

// Validate checks the question's fields. A rubric problem is reported as
// ErrRubricMissing.
func (q *Question) Validate() error {
	if q.ID == "" {
		return errors.New("question id is required")
	}
	if !q.Topic.Valid() {
		return fmt.Errorf("question %s: unknown topic %q", q.ID, q.Topic)
	}
	if q.Difficulty < MinDifficulty || q.Difficulty > MaxDifficulty {
		return fmt.Errorf("question %s: difficulty %d out of range", q.ID, q.Difficulty)
	}
	if q.Prompt == "" {
		return fmt.Errorf("question %s: prompt is required", q.ID)
	}
	if err := q.Rubric.Validate(); err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	return nil
}

// Sentinel errors.
var (
	// ErrNotFound is returned when a question id is unknown.
	ErrNotFound = errors.New("question not found")

	// ErrRubricMissing is returned when a question has no usable rubric.
	ErrRubricMissing = errors.New("rubric missing")
)

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	Topic         Topic
	MinDifficulty int
	MaxDifficulty int

	// MainOnly excludes follow-up-only questions.
	MainOnly bool
}

// Matches reports whether q passes the filter.
func (f Filter) Matches(q *Question) bool {
	if f.Topic != "" && q.Topic != f.Topic {
		return false
	}
	if f.MinDifficulty > 0 && q.Difficulty < f.MinDifficulty {
		return false
	}
	if f.MaxDifficulty > 0 && q.Difficulty > f.MaxDifficulty {
		return false
	}
	if f.MainOnly && q.FollowUpOnly {
		return false
	}
	return true
}

// Bank provides read-only access to questions.
type Bank interface {
	// Get returns the question with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Question, error)

	// List returns questions matching the filter ordered by id.
	List(ctx context.Context, f Filter) ([]*Question, error)
}
