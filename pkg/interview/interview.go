// Package interview defines the vocabulary shared by the interview engine:
// conversation states, user intents, evaluation outcomes and history turns.
package interview

import "time"

// State is a persisted conversation state of an interview session.
type State string

// Persisted states. Evaluating and selecting the next question happen inside
// a single transition and are never stored.
const (
	StateAwaitingReady            State = "awaiting_ready"
	StateAwaitingAnswer           State = "awaiting_answer"
	StateAwaitingClarificationAck State = "awaiting_clarification_ack"
	StateCompleted                State = "completed"
)

// Valid reports whether s is one of the persisted states.
func (s State) Valid() bool {
	switch s {
	case StateAwaitingReady, StateAwaitingAnswer, StateAwaitingClarificationAck, StateCompleted:
		return true
	default:
		return false
	}
}

// QuestionActive reports whether a question must be current in this state.
func (s State) QuestionActive() bool {
	return s == StateAwaitingAnswer || s == StateAwaitingClarificationAck
}

// Intent is the classified purpose of a user utterance.
type Intent string

// The closed set of intents.
const (
	IntentPositiveReady  Intent = "PositiveReady"
	IntentClarifyRequest Intent = "ClarifyRequest"
	IntentAnswer         Intent = "Answer"
	IntentOffTopic       Intent = "OffTopic"
	IntentUnintelligible Intent = "Unintelligible"
)

// Intents lists every intent in a stable order.
var Intents = []Intent{
	IntentPositiveReady,
	IntentClarifyRequest,
	IntentAnswer,
	IntentOffTopic,
	IntentUnintelligible,
}

// Outcome is the graded result of an answer.
type Outcome string

// Evaluation outcomes.
const (
	OutcomeCorrect          Outcome = "Correct"
	OutcomePartiallyCorrect Outcome = "PartiallyCorrect"
	OutcomeIncorrect        Outcome = "Incorrect"
)

// Verdict is the result of evaluating one answer against a rubric.
type Verdict struct {
	Outcome Outcome `json:"outcome"`
	Score   float64 `json:"score"`

	// Satisfied and Total count rubric criteria.
	Satisfied int `json:"satisfied"`
	Total     int `json:"total"`

	// FollowUpQuestionID is set when a partially correct answer leads to a
	// follow-up question on the same topic.
	FollowUpQuestionID string `json:"follow_up_question_id,omitempty"`

	Feedback string `json:"feedback"`

	// Degraded is true when semantic checks could not run and the score is
	// based on deterministic concept matching only.
	Degraded bool `json:"degraded,omitempty"`
}

// Role identifies the author of a turn.
type Role string

// Turn authors.
const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Turn is one entry in a session's history.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Intent and Tier are set on user turns.
	Intent Intent `json:"intent,omitempty"`
	Tier   string `json:"tier,omitempty"`

	// QuestionID is the question that was current when the turn was recorded.
	QuestionID string `json:"question_id,omitempty"`

	// Verdict is set on the system turn that answered an evaluated answer.
	Verdict *Verdict `json:"verdict,omitempty"`
}
