package question

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// MemoryBank implements Bank over an immutable in-memory question set.
type MemoryBank struct {
	byID    map[string]*Question
	ordered []*Question
}

// bankFile is the YAML layout of a question bank file.
type bankFile struct {
	Questions []*Question `yaml:"questions"`
}

// NewMemoryBank builds a bank from questions. Questions with structural
// errors or duplicate ids are rejected. Questions whose rubric is unusable
// are kept so callers can observe ErrRubricMissing and skip them.
func NewMemoryBank(questions []*Question) (*MemoryBank, error) {
	b := &MemoryBank{byID: make(map[string]*Question, len(questions))}
	var errs []string

	for _, q := range questions {
		if err := q.Validate(); err != nil {
			if !errors.Is(err, ErrRubricMissing) {
				errs = append(errs, err.Error())
				continue
			}
			slog.Warn("question has unusable rubric", "question_id", q.ID, "error", err)
		}
		if _, dup := b.byID[q.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate question id %s", q.ID))
			continue
		}
		b.byID[q.ID] = q
		b.ordered = append(b.ordered, q)
	}

	for _, q := range b.ordered {
		for _, f := range q.FollowUps {
			if _, ok := b.byID[f]; !ok {
				errs = append(errs, fmt.Sprintf("question %s: unknown follow-up %s", q.ID, f))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("question bank errors: %s", strings.Join(errs, "; "))
	}

	slices.SortFunc(b.ordered, func(a, c *Question) int { return strings.Compare(a.ID, c.ID) })
	return b, nil
}

// ParseBank decodes a YAML question bank.
func ParseBank(data []byte) ([]*Question, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}
	return f.Questions, nil
}

// LoadFile reads a YAML question bank from path.
func LoadFile(path string) (*MemoryBank, error) {
	// #nosec G304 -- path is from configuration, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank: %w", err)
	}
	questions, err := ParseBank(data)
	if err != nil {
		return nil, err
	}
	return NewMemoryBank(questions)
}

// Get returns the question with the given id.
func (b *MemoryBank) Get(_ context.Context, id string) (*Question, error) {
	q, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q, nil
}

// List returns the questions matching f ordered by id.
func (b *MemoryBank) List(_ context.Context, f Filter) ([]*Question, error) {
	out := make([]*Question, 0, len(b.ordered))
	for _, q := range b.ordered {
		if f.Matches(q) {
			out = append(out, q)
		}
	}
	return out, nil
}

// All returns every question ordered by id.
func (b *MemoryBank) All() []*Question {
	return slices.Clone(b.ordered)
}

// Verify interface compliance.
var _ Bank = (*MemoryBank)(nil)

//go:embed default_bank.yaml
var defaultBank []byte

// LoadDefault returns the built-in question bank.
func LoadDefault() (*MemoryBank, error) {
	questions, err := ParseBank(defaultBank)
	if err != nil {
		return nil, err
	}
	return NewMemoryBank(questions)
}
