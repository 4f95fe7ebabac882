package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
)

func rubric() question.Rubric {
	return question.Rubric{Criteria: []question.Criterion{{Weight: 1, RequiredConcepts: []string{"x"}}}}
}

func q(id string, topic question.Topic, difficulty int) *question.Question {
	return &question.Question{ID: id, Topic: topic, Difficulty: difficulty, Prompt: id, Rubric: rubric()}
}

func testBank(t *testing.T) *question.MemoryBank {
	t.Helper()
	oop1 := q("oop-1", question.TopicOOP, 1)
	oop1.FollowUps = []string{"oop-f1"}
	oopF := q("oop-f1", question.TopicOOP, 2)
	oopF.FollowUpOnly = true
	broken := q("os-0", question.TopicOS, 2)
	broken.Rubric = question.Rubric{}

	bank, err := question.NewMemoryBank([]*question.Question{
		oop1, oopF,
		q("oop-3", question.TopicOOP, 3),
		broken,
		q("os-2", question.TopicOS, 2),
		q("os-4", question.TopicOS, 4),
		q("db-2", question.TopicDBMS, 2),
		q("cn-1", question.TopicCN, 1),
	})
	require.NoError(t, err)
	return bank
}

func TestTargetDifficulty(t *testing.T) {
	assert.Equal(t, 3, TargetDifficulty(2, interview.OutcomeCorrect))
	assert.Equal(t, 1, TargetDifficulty(2, interview.OutcomeIncorrect))
	assert.Equal(t, 2, TargetDifficulty(2, interview.OutcomePartiallyCorrect))
	assert.Equal(t, 2, TargetDifficulty(2, ""))
	assert.Equal(t, question.MaxDifficulty, TargetDifficulty(question.MaxDifficulty, interview.OutcomeCorrect))
	assert.Equal(t, question.MinDifficulty, TargetDifficulty(question.MinDifficulty, interview.OutcomeIncorrect))
}

func TestNext_LeastCoveredTopicFirst(t *testing.T) {
	s := New(testBank(t))
	got, err := s.Next(context.Background(), Progress{
		Coverage:   map[question.Topic]int{question.TopicOOP: 1, question.TopicOS: 1},
		Difficulty: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "db-2", got.ID)
}

func TestNext_TieBrokenByTopicOrder(t *testing.T) {
	s := New(testBank(t))
	got, err := s.Next(context.Background(), Progress{Difficulty: 1})
	require.NoError(t, err)
	assert.Equal(t, "oop-1", got.ID)
}

func TestNext_AdaptsDifficulty(t *testing.T) {
	s := New(testBank(t), WithTopics(question.TopicOOP))

	up, err := s.Next(context.Background(), Progress{Difficulty: 2, LastOutcome: interview.OutcomeCorrect})
	require.NoError(t, err)
	assert.Equal(t, "oop-3", up.ID)

	down, err := s.Next(context.Background(), Progress{Difficulty: 2, LastOutcome: interview.OutcomeIncorrect})
	require.NoError(t, err)
	assert.Equal(t, "oop-1", down.ID)
}

func TestNext_SkipsAskedFollowUpOnlyAndRubricMissing(t *testing.T) {
	s := New(testBank(t), WithTopics(question.TopicOS))

	got, err := s.Next(context.Background(), Progress{Difficulty: 2})
	require.NoError(t, err)
	assert.Equal(t, "os-2", got.ID, "os-0 has no usable rubric")

	got, err = s.Next(context.Background(), Progress{Difficulty: 2, Asked: []string{"os-2"}})
	require.NoError(t, err)
	assert.Equal(t, "os-4", got.ID)
}

func TestNext_ExhaustedReturnsNil(t *testing.T) {
	s := New(testBank(t))
	full := map[question.Topic]int{
		question.TopicOOP: 1, question.TopicOS: 1, question.TopicDBMS: 1, question.TopicCN: 1,
	}
	got, err := s.Next(context.Background(), Progress{Coverage: full, Difficulty: 2})
	require.NoError(t, err)
	assert.Nil(t, got)

	s = New(testBank(t), WithTopics(question.TopicCN), WithQuestionsPerTopic(3))
	got, err = s.Next(context.Background(), Progress{Asked: []string{"cn-1"}, Difficulty: 2})
	require.NoError(t, err)
	assert.Nil(t, got, "a topic without unasked questions is exhausted")
}

func TestNext_QuestionsPerTopic(t *testing.T) {
	s := New(testBank(t), WithTopics(question.TopicOOP), WithQuestionsPerTopic(2))
	got, err := s.Next(context.Background(), Progress{
		Coverage: map[question.Topic]int{question.TopicOOP: 1},
		Asked:    []string{"oop-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "oop-3", got.ID)
}

func TestFollowUp(t *testing.T) {
	bank := testBank(t)
	s := New(bank)
	main, err := bank.Get(context.Background(), "oop-1")
	require.NoError(t, err)

	got, err := s.FollowUp(context.Background(), main, Progress{Asked: []string{"oop-1"}})
	require.NoError(t, err)
	assert.Equal(t, "oop-f1", got.ID)

	got, err = s.FollowUp(context.Background(), main, Progress{Asked: []string{"oop-1", "oop-f1"}})
	require.NoError(t, err)
	assert.Equal(t, "oop-3", got.ID, "falls back to the same topic")

	got, err = s.FollowUp(context.Background(), main, Progress{Asked: []string{"oop-1", "oop-f1", "oop-3"}})
	require.NoError(t, err)
	assert.Nil(t, got)
}

type failingBank struct{}

func (failingBank) Get(context.Context, string) (*question.Question, error) {
	return nil, errors.New("db down")
}

func (failingBank) List(context.Context, question.Filter) ([]*question.Question, error) {
	return nil, errors.New("db down")
}

func TestNext_BankError(t *testing.T) {
	_, err := New(failingBank{}).Next(context.Background(), Progress{})
	assert.ErrorContains(t, err, "db down")
}
