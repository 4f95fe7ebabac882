package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/txn2/mcp-interviewer/pkg/intent"
	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
	"github.com/txn2/mcp-interviewer/pkg/selector"
	"github.com/txn2/mcp-interviewer/pkg/session"
)

const slogKeyError = "error"

// outcome is what a transition produced for the reply.
type outcome struct {
	text    string
	verdict *interview.Verdict
}

// step runs one transition on s. Only store and bank failures are returned;
// oracle problems are absorbed by the collaborators.
func (m *Machine) step(ctx context.Context, s *session.Session, message string) (Reply, error) {
	user := m.userTurn(message, s.CurrentQuestionID)

	if s.State == interview.StateCompleted {
		s.Append(user)
		report := Report(s.Results)
		s.Append(m.systemTurn(report, ""))
		return Reply{Text: report, State: s.State, Completed: true}, nil
	}

	var current *question.Question
	if s.State.QuestionActive() {
		q, err := m.bank.Get(ctx, s.CurrentQuestionID)
		switch {
		case errors.Is(err, question.ErrNotFound):
			slog.Warn("current question missing", "session_id", s.ID, "question_id", s.CurrentQuestionID)
		case err != nil:
			return Reply{}, fmt.Errorf("loading question %s: %w", s.CurrentQuestionID, err)
		default:
			current = q
		}
	}

	res := m.classifier.Classify(ctx, message, classifyContext(s, current))
	user.Intent = res.Intent
	user.Tier = string(res.Tier)
	s.Append(user)

	var (
		out outcome
		err error
	)
	switch s.State {
	case interview.StateAwaitingReady:
		out, err = m.onReady(ctx, s, res)
	case interview.StateAwaitingAnswer, interview.StateAwaitingClarificationAck:
		if current == nil {
			out, err = m.moveOn(ctx, s, "", QuestionMissingApology)
			break
		}
		out, err = m.onQuestion(ctx, s, current, message, res)
	default:
		return Reply{}, fmt.Errorf("session %s in unknown state %q", s.ID, s.State)
	}
	if err != nil {
		return Reply{}, err
	}

	sys := m.systemTurn(out.text, s.CurrentQuestionID)
	sys.Verdict = out.verdict
	s.Append(sys)

	return Reply{
		Text:       out.text,
		State:      s.State,
		Intent:     res.Intent,
		QuestionID: s.CurrentQuestionID,
		Verdict:    out.verdict,
		Completed:  s.State == interview.StateCompleted,
	}, nil
}

func classifyContext(s *session.Session, current *question.Question) intent.Context {
	c := intent.Context{State: s.State, History: s.History}
	if current != nil {
		c.QuestionPrompt = current.Prompt
		c.Concepts = current.Rubric.Concepts()
	}
	return c
}

func progress(s *session.Session) selector.Progress {
	return selector.Progress{
		Asked:       s.Asked,
		Coverage:    s.Coverage,
		Difficulty:  s.Difficulty,
		LastOutcome: s.LastOutcome,
	}
}

func (m *Machine) onReady(ctx context.Context, s *session.Session, res intent.Result) (outcome, error) {
	switch res.Intent {
	case interview.IntentPositiveReady:
		return m.moveOn(ctx, s, "", "")
	case interview.IntentUnintelligible:
		return outcome{text: ReadyRepromptMessage}, nil
	}
	if res.Reason == intent.ReasonNotReady {
		return outcome{text: NotReadyMessage}, nil
	}
	return outcome{text: NoQuestionMessage}, nil
}

func (m *Machine) onQuestion(
	ctx context.Context, s *session.Session, q *question.Question, message string, res intent.Result,
) (outcome, error) {
	switch res.Intent {
	case interview.IntentClarifyRequest:
		hint := m.clarifier.Clarify(ctx, q, message, s.History[:len(s.History)-1])
		slog.Debug("clarification", "session_id", s.ID, "question_id", q.ID, "source", hint.Source)
		if m.policy.ClarificationAck {
			s.State = interview.StateAwaitingClarificationAck
			return outcome{text: hint.Text + "\n\n" + ClarificationAckPrompt}, nil
		}
		s.State = interview.StateAwaitingAnswer
		return outcome{text: hint.Text}, nil

	case interview.IntentAnswer:
		s.State = interview.StateAwaitingAnswer
		return m.answer(ctx, s, q, message)

	case interview.IntentPositiveReady:
		if s.State == interview.StateAwaitingClarificationAck {
			s.State = interview.StateAwaitingAnswer
			return outcome{text: ClarificationAckedMessage}, nil
		}
		return outcome{text: RestatePrefix + q.Prompt}, nil

	case interview.IntentOffTopic:
		switch res.Reason {
		case intent.ReasonSolutionRequest:
			return outcome{text: SolutionRefusal}, nil
		case intent.ReasonCorrectnessCheck:
			return outcome{text: CorrectnessRefusal}, nil
		}
		return outcome{text: OffTopicRefusal}, nil

	default:
		return outcome{text: AnswerRepromptMessage}, nil
	}
}

// answer evaluates message against q and routes on the verdict.
func (m *Machine) answer(ctx context.Context, s *session.Session, q *question.Question, message string) (outcome, error) {
	if err := q.Rubric.Validate(); err != nil {
		slog.Warn("cannot evaluate question", "session_id", s.ID, "question_id", q.ID, slogKeyError, err)
		return m.moveOn(ctx, s, "", RubricMissingApology)
	}

	s.AttemptCount++
	v := m.evaluator.Evaluate(ctx, message, q.Rubric)
	if v.Degraded {
		slog.Warn("evaluation degraded", "session_id", s.ID, "question_id", q.ID)
	}

	switch v.Outcome {
	case interview.OutcomeCorrect:
		record(s, q, v)
		out, err := m.moveOn(ctx, s, v.Outcome, v.Feedback)
		out.verdict = &v
		return out, err

	case interview.OutcomePartiallyCorrect:
		record(s, q, v)
		if s.FollowUpDepth < m.policy.MaxFollowUps {
			f, err := m.selector.FollowUp(ctx, q, progress(s))
			if err != nil {
				return outcome{}, fmt.Errorf("selecting follow-up: %w", err)
			}
			if f != nil {
				s.FollowUpDepth++
				pose(s, f, true)
				v.FollowUpQuestionID = f.ID
				return outcome{text: followUpMessage(v.Feedback, f.Prompt), verdict: &v}, nil
			}
		}
		out, err := m.moveOn(ctx, s, v.Outcome, v.Feedback)
		out.verdict = &v
		return out, err

	default:
		if s.AttemptCount < m.policy.RetryLimit {
			return outcome{text: retryMessage(v.Feedback, m.policy.RetryLimit-s.AttemptCount), verdict: &v}, nil
		}
		record(s, q, v)
		out, err := m.moveOn(ctx, s, v.Outcome, v.Feedback)
		out.verdict = &v
		return out, err
	}
}

// moveOn finishes the current chain with last and poses the next main
// question, or completes the interview. lead precedes the new prompt. An
// empty last means the chain ended ungraded and the difficulty stays put.
func (m *Machine) moveOn(ctx context.Context, s *session.Session, last interview.Outcome, lead string) (outcome, error) {
	s.LastOutcome = last

	next, err := m.selector.Next(ctx, progress(s))
	if err != nil {
		return outcome{}, fmt.Errorf("selecting question: %w", err)
	}
	if next == nil {
		s.State = interview.StateCompleted
		s.SetQuestion("")
		s.MainQuestionID = ""
		s.FollowUpDepth = 0
		slog.Info("interview completed", "session_id", s.ID, "questions", len(s.Results))

		text := Report(s.Results)
		if lead != "" {
			text = lead + "\n\n" + text
		}
		return outcome{text: text}, nil
	}

	pose(s, next, false)
	return outcome{text: nextMessage(lead, next.Prompt)}, nil
}

// pose makes q current. Main questions start a new follow-up chain and
// count toward topic coverage.
func pose(s *session.Session, q *question.Question, followUp bool) {
	s.SetQuestion(q.ID)
	s.Asked = append(s.Asked, q.ID)
	s.State = interview.StateAwaitingAnswer
	if followUp {
		return
	}
	if s.Coverage == nil {
		s.Coverage = map[question.Topic]int{}
	}
	s.Coverage[q.Topic]++
	s.MainQuestionID = q.ID
	s.FollowUpDepth = 0
	s.Difficulty = q.Difficulty
}

func record(s *session.Session, q *question.Question, v interview.Verdict) {
	s.Results = append(s.Results, session.Result{
		QuestionID: q.ID,
		Topic:      q.Topic,
		FollowUp:   q.ID != s.MainQuestionID,
		Outcome:    v.Outcome,
		Score:      v.Score,
		Attempts:   s.AttemptCount,
	})
}
