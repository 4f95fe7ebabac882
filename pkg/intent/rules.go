package intent

import (
	"strings"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/textmatch"
)

// Reasons refine an OffTopic classification so callers can pick a fitting
// refusal.
const (
	ReasonSolutionRequest  = "solution_request"
	ReasonCorrectnessCheck = "correctness_check"
	ReasonNotReady         = "not_ready"
)

const (
	maxReadyWords     = 8
	maxAckWords       = 4
	minAnswerWords    = 8
	minTopicalWordLen = 4
	gibberishTokenLen = 5
)

var affirmativePhrases = []string{
	"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "ready", "lets go",
	"lets start", "lets begin", "start", "begin", "go ahead", "of course",
	"absolutely", "lets do it", "bring it on", "sounds good", "definitely",
}

var negationWords = map[string]bool{
	"no": true, "nope": true, "nah": true, "not": true, "later": true,
	"wait": true, "dont": true, "cant": true, "stop": true, "never": true,
}

var clarifyPhrases = []string{
	"rephrase", "clarify", "clarification", "what do you mean", "what does that mean",
	"dont understand", "do not understand", "didnt understand", "dont get it",
	"repeat the question", "say that again", "can you repeat", "explain the question",
	"elaborate", "what is the question", "whats the question", "confused", "unclear",
	"another way", "simpler terms", "what are you asking",
}

var solutionPhrases = []string{
	"tell me the answer", "give me the answer", "whats the answer", "what is the answer",
	"show me the answer", "just tell me", "give me the solution", "show me the solution",
	"whats the solution", "what is the solution", "correct answer", "model answer",
	"give me a hint", "give me hints",
}

var correctnessPhrases = []string{
	"am i right", "am i correct", "is that correct", "is this correct", "is that right",
	"is this right", "was i right", "did i get it",
}

var ackPhrases = []string{
	"ok", "okay", "got it", "thanks", "thank you", "makes sense", "i see",
	"understood", "alright", "cool", "great", "ready", "yes",
}

var stopwords = map[string]bool{
	"what": true, "which": true, "when": true, "where": true, "does": true,
	"with": true, "that": true, "this": true, "from": true, "your": true,
	"explain": true, "describe": true, "between": true, "difference": true,
	"would": true, "could": true, "should": true, "about": true, "there": true,
	"their": true, "have": true, "into": true, "some": true, "them": true,
	"they": true, "name": true, "list": true, "compare": true, "happens": true,
}

// ruleResult is the outcome of the deterministic tier.
type ruleResult struct {
	intent interview.Intent
	reason string
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if textmatch.ContainsPhrase(text, p) {
			return true
		}
	}
	return false
}

func hasNegation(words []string) bool {
	for _, w := range words {
		if negationWords[w] {
			return true
		}
	}
	return false
}

// unintelligible reports input with no words, or input made only of long
// vowel-less tokens such as keyboard mashing.
func unintelligible(words []string) bool {
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if len(w) < gibberishTokenLen || strings.ContainsAny(w, "aeiouy0123456789") {
			return false
		}
	}
	return true
}

// topicalOverlap reports whether the utterance shares a content word stem
// with the question prompt.
func topicalOverlap(utterance, prompt string) bool {
	if prompt == "" {
		return false
	}
	promptStems := make(map[string]bool)
	for _, w := range textmatch.Words(prompt) {
		if len(w) >= minTopicalWordLen && !stopwords[w] {
			promptStems[textmatch.Stem(w)] = true
		}
	}
	for _, w := range textmatch.Words(utterance) {
		if len(w) >= minTopicalWordLen && !stopwords[w] && promptStems[textmatch.Stem(w)] {
			return true
		}
	}
	return false
}

// applyRules runs the deterministic tier. The second return value is false
// when the rules are inconclusive.
func applyRules(utterance string, c Context) (ruleResult, bool) {
	words := textmatch.Words(utterance)
	if unintelligible(words) {
		return ruleResult{intent: interview.IntentUnintelligible}, true
	}

	switch c.State {
	case interview.StateAwaitingReady:
		return readyRules(utterance, words)
	case interview.StateAwaitingAnswer, interview.StateAwaitingClarificationAck:
		return answerRules(utterance, words, c)
	case interview.StateCompleted:
		return ruleResult{intent: interview.IntentOffTopic}, true
	}
	return ruleResult{}, false
}

func readyRules(utterance string, words []string) (ruleResult, bool) {
	if hasNegation(words) {
		return ruleResult{intent: interview.IntentOffTopic, reason: ReasonNotReady}, true
	}
	if len(words) <= maxReadyWords && containsAny(utterance, affirmativePhrases) {
		return ruleResult{intent: interview.IntentPositiveReady}, true
	}
	return ruleResult{}, false
}

// answerRules classifies utterances while a question is open. A statement of
// at least minAnswerWords words that names a rubric concept is an answer even
// when it also contains a clarify, solution or correctness phrase.
func answerRules(utterance string, words []string, c Context) (ruleResult, bool) {
	trimmed := strings.TrimSpace(utterance)
	question := strings.HasSuffix(trimmed, "?")
	mentionsConcept := len(c.Concepts) > 0 && textmatch.NewMatcher(c.Concepts).Any(utterance)

	if mentionsConcept && !question && len(words) >= minAnswerWords {
		return ruleResult{intent: interview.IntentAnswer}, true
	}
	if containsAny(utterance, clarifyPhrases) {
		return ruleResult{intent: interview.IntentClarifyRequest}, true
	}
	if containsAny(utterance, solutionPhrases) {
		return ruleResult{intent: interview.IntentOffTopic, reason: ReasonSolutionRequest}, true
	}
	if containsAny(utterance, correctnessPhrases) {
		return ruleResult{intent: interview.IntentOffTopic, reason: ReasonCorrectnessCheck}, true
	}
	if mentionsConcept {
		return ruleResult{intent: interview.IntentAnswer}, true
	}
	if len(words) <= maxAckWords && !hasNegation(words) && containsAny(utterance, ackPhrases) {
		return ruleResult{intent: interview.IntentPositiveReady}, true
	}
	if len(words) >= minAnswerWords && !question && topicalOverlap(utterance, c.QuestionPrompt) {
		return ruleResult{intent: interview.IntentAnswer}, true
	}
	return ruleResult{}, false
}
