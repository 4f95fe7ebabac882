// Package selector chooses the next interview question. It balances topic
// coverage, adapts difficulty to the last outcome and never repeats a
// question within a session.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
)

// DefaultQuestionsPerTopic is the number of main questions asked per topic.
const DefaultQuestionsPerTopic = 1

// Progress is the session state the selector needs.
type Progress struct {
	Asked       []string
	Coverage    map[question.Topic]int
	Difficulty  int
	LastOutcome interview.Outcome
}

func (p Progress) asked(id string) bool {
	return slices.Contains(p.Asked, id)
}

// Selector picks questions from a Bank.
type Selector struct {
	bank     question.Bank
	perTopic int
	topics   []question.Topic
}

// Option configures a Selector.
type Option func(*Selector)

// WithQuestionsPerTopic sets how many main questions each topic receives.
func WithQuestionsPerTopic(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.perTopic = n
		}
	}
}

// WithTopics restricts and orders the topics. Ties in coverage are broken
// by this order.
func WithTopics(topics ...question.Topic) Option {
	return func(s *Selector) {
		if len(topics) > 0 {
			s.topics = slices.Clone(topics)
		}
	}
}

// New creates a Selector over bank.
func New(bank question.Bank, opts ...Option) *Selector {
	s := &Selector{
		bank:     bank,
		perTopic: DefaultQuestionsPerTopic,
		topics:   slices.Clone(question.Topics),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TargetDifficulty adapts current to the last outcome: up after Correct,
// down after Incorrect, unchanged otherwise. The result is clamped to the
// difficulty scale.
func TargetDifficulty(current int, last interview.Outcome) int {
	switch last {
	case interview.OutcomeCorrect:
		current++
	case interview.OutcomeIncorrect:
		current--
	}
	return question.ClampDifficulty(current)
}

// Next returns the next main question, or nil when every topic has reached
// its question count or has no usable questions left.
func (s *Selector) Next(ctx context.Context, p Progress) (*question.Question, error) {
	target := TargetDifficulty(p.Difficulty, p.LastOutcome)

	for _, topic := range s.topicOrder(p.Coverage) {
		if p.Coverage[topic] >= s.perTopic {
			continue
		}
		candidates, err := s.bank.List(ctx, question.Filter{Topic: topic, MainOnly: true})
		if err != nil {
			return nil, fmt.Errorf("listing %s questions: %w", topic, err)
		}
		if q := closest(usable(candidates, p), target); q != nil {
			return q, nil
		}
	}
	return nil, nil //nolint:nilnil // nil question means the interview is complete
}

// FollowUp returns a follow-up for q: its first unasked declared follow-up
// with a usable rubric, else the unasked question on the same topic closest
// to q's difficulty. It returns nil when neither exists.
func (s *Selector) FollowUp(ctx context.Context, q *question.Question, p Progress) (*question.Question, error) {
	for _, id := range q.FollowUps {
		if p.asked(id) {
			continue
		}
		f, err := s.bank.Get(ctx, id)
		if err != nil {
			slog.Warn("follow-up unavailable", "question_id", q.ID, "follow_up_id", id, "error", err)
			continue
		}
		if err := f.Rubric.Validate(); err != nil {
			slog.Warn("skipping follow-up", "question_id", id, "error", err)
			continue
		}
		return f, nil
	}

	candidates, err := s.bank.List(ctx, question.Filter{Topic: q.Topic})
	if err != nil {
		return nil, fmt.Errorf("listing %s questions: %w", q.Topic, err)
	}
	p.Asked = append(slices.Clone(p.Asked), q.ID)
	return closest(usable(candidates, p), q.Difficulty), nil
}

// topicOrder sorts topics by ascending coverage, keeping configured order
// for ties.
func (s *Selector) topicOrder(coverage map[question.Topic]int) []question.Topic {
	order := slices.Clone(s.topics)
	slices.SortStableFunc(order, func(a, b question.Topic) int {
		return coverage[a] - coverage[b]
	})
	return order
}

// usable drops asked questions and questions without a valid rubric.
func usable(candidates []*question.Question, p Progress) []*question.Question {
	out := make([]*question.Question, 0, len(candidates))
	for _, q := range candidates {
		if p.asked(q.ID) {
			continue
		}
		if err := q.Rubric.Validate(); err != nil {
			slog.Warn("skipping question", "question_id", q.ID, "error", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

// closest returns the candidate whose difficulty is nearest target. Ties
// go to the lower difficulty, then to the lower id.
func closest(candidates []*question.Question, target int) *question.Question {
	var best *question.Question
	bestDist := 0
	for _, q := range candidates {
		d := abs(q.Difficulty - target)
		switch {
		case best == nil, d < bestDist:
			best, bestDist = q, d
		case d == bestDist && q.Difficulty < best.Difficulty:
			best = q
		case d == bestDist && q.Difficulty == best.Difficulty && q.ID < best.ID:
			best = q
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
