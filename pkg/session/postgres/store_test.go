package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
	"github.com/txn2/mcp-interviewer/pkg/session"
)

const (
	testTTL      = 30 * time.Minute
	pgTestSessID = "sess-123"
)

var selectColumns = []string{
	"id", "state", "current_question_id", "attempt_count", "version", "record",
	"created_at", "last_active_at", "expires_at",
}

func newTestSession() *session.Session {
	now := time.Now().UTC()
	return &session.Session{
		ID:                pgTestSessID,
		State:             interview.StateAwaitingAnswer,
		CurrentQuestionID: "os-deadlock",
		AttemptCount:      1,
		Asked:             []string{"os-deadlock"},
		Coverage:          map[question.Topic]int{question.TopicOS: 1},
		Difficulty:        2,
		History: []interview.Turn{
			{Role: interview.RoleSystem, Text: "What is a deadlock?", QuestionID: "os-deadlock"},
		},
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(testTTL),
		Version:      3,
	}
}

func sessionRow(t *testing.T, sess *session.Session) *sqlmock.Rows {
	t.Helper()
	record, err := json.Marshal(sess)
	require.NoError(t, err)
	return sqlmock.NewRows(selectColumns).AddRow(
		sess.ID, string(sess.State), sess.CurrentQuestionID, sess.AttemptCount, sess.Version, record,
		sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt,
	)
}

func TestCreate_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()

	mock.ExpectExec("INSERT INTO sessions").WithArgs(
		sess.ID, "awaiting_answer", "os-deadlock", 1, int64(3), sqlmock.AnyArg(),
		sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.Create(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("connection refused"))

	err = New(db).Create(context.Background(), newTestSession())
	assert.ErrorContains(t, err, "inserting session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sess := newTestSession()
	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs(pgTestSessID).
		WillReturnRows(sessionRow(t, sess))

	got, err := New(db).Get(context.Background(), pgTestSessID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, interview.StateAwaitingAnswer, got.State)
	assert.Equal(t, "os-deadlock", got.CurrentQuestionID)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 1, got.Coverage[question.TopicOS])
	require.Len(t, got.History, 1)
	assert.Equal(t, "What is a deadlock?", got.History[0].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_ColumnsWinOverRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sess := newTestSession()
	record, err := json.Marshal(sess)
	require.NoError(t, err)
	rows := sqlmock.NewRows(selectColumns).AddRow(
		sess.ID, "completed", "", 0, int64(7), record,
		sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt,
	)
	mock.ExpectQuery("SELECT .+ FROM sessions").WillReturnRows(rows)

	got, err := New(db).Get(context.Background(), pgTestSessID)
	require.NoError(t, err)
	assert.Equal(t, interview.StateCompleted, got.State)
	assert.Empty(t, got.CurrentQuestionID)
	assert.Equal(t, int64(7), got.Version)
}

func TestGet_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs("nonexistent").
		WillReturnRows(sqlmock.NewRows(selectColumns))

	got, err := New(db).Get(context.Background(), "nonexistent")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT .+ FROM sessions").
		WillReturnError(errors.New("db unavailable"))

	got, err := New(db).Get(context.Background(), pgTestSessID)
	assert.ErrorContains(t, err, "scanning session")
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_CorruptRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sess := newTestSession()
	rows := sqlmock.NewRows(selectColumns).AddRow(
		sess.ID, string(sess.State), "", 0, int64(0), []byte("{not json"),
		sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt,
	)
	mock.ExpectQuery("SELECT .+ FROM sessions").WillReturnRows(rows)

	_, err = New(db).Get(context.Background(), pgTestSessID)
	assert.ErrorContains(t, err, "decoding session record")
}

func TestSave_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sess := newTestSession()
	mock.ExpectExec("UPDATE sessions").WithArgs(
		pgTestSessID, int64(3), "awaiting_answer", "os-deadlock", 1, sqlmock.AnyArg(),
		sess.LastActiveAt, sess.ExpiresAt,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, New(db).Save(context.Background(), sess))
	assert.Equal(t, int64(4), sess.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_Deleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sess := newTestSession()
	mock.ExpectExec("UPDATE sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM sessions").WithArgs(pgTestSessID).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	err = New(db).Save(context.Background(), sess)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, int64(3), sess.Version, "version unchanged on failure")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM sessions").WithArgs(pgTestSessID).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))

	err = New(db).Save(context.Background(), newTestSession())
	assert.ErrorIs(t, err, session.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE sessions").WillReturnError(errors.New("connection lost"))

	err = New(db).Save(context.Background(), newTestSession())
	assert.ErrorContains(t, err, "updating session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("DELETE FROM sessions WHERE id").WithArgs(pgTestSessID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, New(db).Delete(context.Background(), pgTestSessID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("DELETE FROM sessions WHERE id").
		WillReturnError(errors.New("delete failed"))

	err = New(db).Delete(context.Background(), pgTestSessID)
	assert.ErrorContains(t, err, "deleting session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	assert.NoError(t, New(db).Cleanup(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
		WillReturnError(errors.New("cleanup failed"))

	err = New(db).Cleanup(context.Background())
	assert.ErrorContains(t, err, "cleaning up sessions")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectPing()
	assert.NoError(t, New(db).Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, New(db).Ping(context.Background()), "pinging session store")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_NilCancel_NoPanic(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.NoError(t, New(db).Close())
}

func TestClose_StopsCleanupRoutine(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.MatchExpectationsInOrder(false)
	for range 10 {
		mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	store := New(db)
	store.StartCleanupRoutine(10 * time.Millisecond)
	time.Sleep(35 * time.Millisecond)

	assert.NoError(t, store.Close())
}
