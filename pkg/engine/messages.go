package engine

import (
	"fmt"
	"strings"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/session"
)

// Fixed replies.
const (
	WelcomeMessage = "Welcome to the application. This website provides interview practice on " +
		"computer science fundamentals. Are you ready to begin?"

	SolutionRefusal = "I can't provide the complete answer or solution. " +
		"However, I can help by clarifying the question."

	CorrectnessRefusal = "I can't evaluate correctness on the spot. " +
		"Please give your full answer, and I will assess it afterwards."

	OffTopicRefusal = "I can only help with the current interview question. " +
		"Please answer it, or ask me to clarify it."

	NotReadyMessage = "No problem. Let me know whenever you're ready to begin."

	NoQuestionMessage = "No active question to evaluate. Say 'I'm ready' to begin."

	ReadyRepromptMessage = "Sorry, I didn't catch that. Are you ready to begin?"

	AnswerRepromptMessage = "Sorry, I didn't understand that. " +
		"Could you answer the current question again in a few sentences?"

	RestatePrefix = "Here is the current question again:\n\n"

	ClarificationAckPrompt = "Let me know when you're ready to answer."

	ClarificationAckedMessage = "Great. Go ahead with your answer whenever you're ready."

	RubricMissingApology = "Sorry, I can't evaluate this question right now, so let's move on."

	QuestionMissingApology = "Sorry, the current question is no longer available, so let's move on."

	SessionExpiredMessage = "Your session has expired or was ended. Start a new session to begin again."

	EmptyMessageReply = "Message cannot be empty."

	ServiceErrorMessage = "Sorry, something went wrong on my side. Please try again in a moment."
)

func retryMessage(feedback string, left int) string {
	attempts := "attempt"
	if left != 1 {
		attempts = "attempts"
	}
	return fmt.Sprintf("%s Would you like to try again? You have %d %s left.", feedback, left, attempts)
}

func followUpMessage(feedback, prompt string) string {
	return feedback + " Let's dig a little deeper:\n\n" + prompt
}

func nextMessage(lead, prompt string) string {
	if lead == "" {
		return prompt
	}
	return lead + "\n\nNext question:\n\n" + prompt
}

func outcomeLabel(o interview.Outcome) string {
	switch o {
	case interview.OutcomeCorrect:
		return "correct"
	case interview.OutcomePartiallyCorrect:
		return "partially correct"
	default:
		return "incorrect"
	}
}

// Report summarizes a finished interview.
func Report(results []session.Result) string {
	var b strings.Builder
	b.WriteString("That concludes the interview.")
	if len(results) == 0 {
		b.WriteString(" There were no questions available this time. Start a new session to try again.")
		return b.String()
	}

	b.WriteString(" Here is your summary:\n")
	var total float64
	correct := 0
	for i, r := range results {
		kind := ""
		if r.FollowUp {
			kind = " (follow-up)"
		}
		fmt.Fprintf(&b, "%d. [%s] %s%s: %s, score %.2f, %d attempt(s)\n",
			i+1, r.Topic, r.QuestionID, kind, outcomeLabel(r.Outcome), r.Score, r.Attempts)
		total += r.Score
		if r.Outcome == interview.OutcomeCorrect {
			correct++
		}
	}
	fmt.Fprintf(&b, "Overall: %d of %d answered correctly, average score %.2f.\n",
		correct, len(results), total/float64(len(results)))
	b.WriteString("Thanks for practicing! Start a new session to try again.")
	return b.String()
}
