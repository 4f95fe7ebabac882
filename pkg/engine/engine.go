// Package engine implements the interview state machine. Each turn loads
// the session under its lock, classifies the message, runs the transition
// for the current state and persists the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/txn2/mcp-interviewer/pkg/clarify"
	"github.com/txn2/mcp-interviewer/pkg/intent"
	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
	"github.com/txn2/mcp-interviewer/pkg/selector"
	"github.com/txn2/mcp-interviewer/pkg/session"
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message cannot be empty")

// Classifier classifies user utterances.
type Classifier interface {
	Classify(ctx context.Context, utterance string, c intent.Context) intent.Result
}

// Clarifier rephrases a question without revealing its rubric.
type Clarifier interface {
	Clarify(ctx context.Context, q *question.Question, request string, history []interview.Turn) clarify.Hint
}

// Evaluator grades answers against a rubric.
type Evaluator interface {
	Evaluate(ctx context.Context, answer string, r question.Rubric) interview.Verdict
}

// Selector chooses questions.
type Selector interface {
	Next(ctx context.Context, p selector.Progress) (*question.Question, error)
	FollowUp(ctx context.Context, q *question.Question, p selector.Progress) (*question.Question, error)
}

// Policy holds the tunable interview rules.
type Policy struct {
	// RetryLimit is the number of answers allowed for one question before
	// an Incorrect answer moves the interview on.
	RetryLimit int `yaml:"retry_limit"`

	// MaxFollowUps bounds follow-ups per main question.
	MaxFollowUps int `yaml:"max_follow_ups"`

	// StartDifficulty is the target difficulty of the first question.
	StartDifficulty int `yaml:"start_difficulty"`

	// ClarificationAck makes a clarification wait for an acknowledgement
	// before the next answer.
	ClarificationAck bool `yaml:"clarification_ack"`
}

// DefaultPolicy returns the default interview rules.
func DefaultPolicy() Policy {
	return Policy{
		RetryLimit:      2,
		MaxFollowUps:    1,
		StartDifficulty: 2,
	}
}

// Config holds the Machine's collaborators.
type Config struct {
	Sessions   *session.Manager
	Bank       question.Bank
	Classifier Classifier
	Clarifier  Clarifier
	Evaluator  Evaluator
	Selector   Selector
	Policy     Policy
}

// Reply is the outcome of one turn.
type Reply struct {
	Text       string             `json:"reply"`
	State      interview.State    `json:"state"`
	Intent     interview.Intent   `json:"intent,omitempty"`
	QuestionID string             `json:"question_id,omitempty"`
	Verdict    *interview.Verdict `json:"verdict,omitempty"`
	Completed  bool               `json:"completed,omitempty"`
}

// Machine drives interview sessions.
type Machine struct {
	sessions   *session.Manager
	bank       question.Bank
	classifier Classifier
	clarifier  Clarifier
	evaluator  Evaluator
	selector   Selector
	policy     Policy
	now        func() time.Time
}

// New creates a Machine.
func New(cfg Config) (*Machine, error) {
	var errs []string
	if cfg.Sessions == nil {
		errs = append(errs, "session manager is required")
	}
	if cfg.Bank == nil {
		errs = append(errs, "question bank is required")
	}
	if cfg.Classifier == nil {
		errs = append(errs, "classifier is required")
	}
	if cfg.Clarifier == nil {
		errs = append(errs, "clarifier is required")
	}
	if cfg.Evaluator == nil {
		errs = append(errs, "evaluator is required")
	}
	if cfg.Selector == nil {
		errs = append(errs, "selector is required")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("engine config errors: %s", strings.Join(errs, "; "))
	}

	p := cfg.Policy
	if p.RetryLimit < 1 {
		p.RetryLimit = 1
	}
	if p.MaxFollowUps < 0 {
		p.MaxFollowUps = 0
	}
	p.StartDifficulty = question.ClampDifficulty(p.StartDifficulty)

	return &Machine{
		sessions:   cfg.Sessions,
		bank:       cfg.Bank,
		classifier: cfg.Classifier,
		clarifier:  cfg.Clarifier,
		evaluator:  cfg.Evaluator,
		selector:   cfg.Selector,
		policy:     p,
		now:        time.Now,
	}, nil
}

// Policy returns the effective policy.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Start opens a session in AwaitingReady and returns its id and greeting.
func (m *Machine) Start(ctx context.Context) (string, Reply, error) {
	sess, err := m.sessions.Start(ctx, func(s *session.Session) {
		s.Difficulty = m.policy.StartDifficulty
		s.Append(m.systemTurn(WelcomeMessage, ""))
	})
	if err != nil {
		return "", Reply{}, err
	}
	slog.Info("interview started", "session_id", sess.ID)
	return sess.ID, Reply{Text: WelcomeMessage, State: sess.State}, nil
}

// Turn processes one user message. It returns session.ErrNotFound when the
// session is unknown, expired or was ended while the turn ran.
func (m *Machine) Turn(ctx context.Context, sessionID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	var reply Reply
	_, err := m.sessions.Update(ctx, sessionID, func(s *session.Session) error {
		r, err := m.step(ctx, s, message)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	slog.Debug("turn processed",
		"session_id", sessionID,
		"intent", reply.Intent,
		"state", reply.State,
		"question_id", reply.QuestionID)
	return reply, nil
}

// End discards a session. Ending an unknown session is not an error.
func (m *Machine) End(ctx context.Context, sessionID string) error {
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("interview ended", "session_id", sessionID)
	return nil
}

func (m *Machine) userTurn(text string, questionID string) interview.Turn {
	return interview.Turn{Role: interview.RoleUser, Text: text, Timestamp: m.now().UTC(), QuestionID: questionID}
}

func (m *Machine) systemTurn(text string, questionID string) interview.Turn {
	return interview.Turn{Role: interview.RoleSystem, Text: text, Timestamp: m.now().UTC(), QuestionID: questionID}
}
