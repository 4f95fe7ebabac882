// Package session provides interview session persistence and lifecycle.
// It defines the Store interface for session persistence, the Session type
// that holds one interview's conversation state, and the Manager that
// serializes turns per session.
package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a session does not exist, has expired or
	// was deleted while a turn was in flight.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned when a save is based on a stale version.
	ErrConflict = errors.New("session modified concurrently")
)

// Result records how one question went.
type Result struct {
	QuestionID string            `json:"question_id"`
	Topic      question.Topic    `json:"topic"`
	FollowUp   bool              `json:"follow_up,omitempty"`
	Outcome    interview.Outcome `json:"outcome"`
	Score      float64           `json:"score"`
	Attempts   int               `json:"attempts"`
}

// Session is one interview conversation.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// State is the persisted conversation state.
	State interview.State `json:"state"`

	// CurrentQuestionID is the active question. It is empty before the
	// first question and after completion.
	CurrentQuestionID string `json:"current_question_id,omitempty"`

	// AttemptCount counts answers to the current question. It is reset to
	// zero exactly when CurrentQuestionID changes.
	AttemptCount int `json:"attempt_count"`

	// History is append-only.
	History []interview.Turn `json:"history"`

	// Asked lists every question posed, in order.
	Asked []string `json:"asked"`

	// Coverage counts main questions posed per topic.
	Coverage map[question.Topic]int `json:"coverage"`

	// Difficulty is the current target difficulty.
	Difficulty int `json:"difficulty"`

	// LastOutcome is the outcome of the last finished main question chain.
	// It is empty when that chain ended without a verdict.
	LastOutcome interview.Outcome `json:"last_outcome,omitempty"`

	// MainQuestionID is the root of the current follow-up chain.
	MainQuestionID string `json:"main_question_id,omitempty"`

	// FollowUpDepth counts follow-ups asked in the current chain.
	FollowUpDepth int `json:"follow_up_depth"`

	// Results holds one entry per finished question.
	Results []Result `json:"results"`

	// CreatedAt is when the session was established.
	CreatedAt time.Time `json:"created_at"`

	// LastActiveAt is the most recent activity timestamp.
	LastActiveAt time.Time `json:"last_active_at"`

	// ExpiresAt is when the session expires if not touched.
	ExpiresAt time.Time `json:"expires_at"`

	// Version increases with every successful save.
	Version int64 `json:"version"`
}

// SetQuestion makes id the current question. The attempt count is reset
// only when the question actually changes.
func (s *Session) SetQuestion(id string) {
	if s.CurrentQuestionID == id {
		return
	}
	s.CurrentQuestionID = id
	s.AttemptCount = 0
}

// Append adds turns to the history.
func (s *Session) Append(turns ...interview.Turn) {
	s.History = append(s.History, turns...)
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.History = slices.Clone(s.History)
	for i, t := range c.History {
		if t.Verdict != nil {
			v := *t.Verdict
			c.History[i].Verdict = &v
		}
	}
	c.Asked = slices.Clone(s.Asked)
	c.Coverage = maps.Clone(s.Coverage)
	c.Results = slices.Clone(s.Results)
	return &c
}

// Store defines the interface for session persistence.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by ID. Returns nil, nil if not found or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Save replaces a session if its stored version equals s.Version and
	// increments s.Version. It returns ErrNotFound when the session no
	// longer exists and ErrConflict when the version is stale.
	Save(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sessions.
	Cleanup(ctx context.Context) error

	// Close stops background routines and releases resources.
	Close() error
}
