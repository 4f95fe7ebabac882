// Package postgres provides PostgreSQL storage for the question bank.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/mcp-interviewer/pkg/question"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// questionColumns lists columns returned by question SELECT queries.
var questionColumns = []string{
	"id", "topic", "difficulty", "kind", "prompt", "rephrase",
	"follow_ups", "follow_up_only", "rubric",
}

// Store implements question.Bank using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL question store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the question with the given id.
func (s *Store) Get(ctx context.Context, id string) (*question.Question, error) {
	query, args, err := psq.Select(questionColumns...).
		From("questions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building question query: %w", err)
	}

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", question.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// applyFilter adds filter conditions to a SELECT builder.
func applyFilter(qb sq.SelectBuilder, f question.Filter) sq.SelectBuilder {
	if f.Topic != "" {
		qb = qb.Where(sq.Eq{"topic": string(f.Topic)})
	}
	if f.MinDifficulty > 0 {
		qb = qb.Where(sq.GtOrEq{"difficulty": f.MinDifficulty})
	}
	if f.MaxDifficulty > 0 {
		qb = qb.Where(sq.LtOrEq{"difficulty": f.MaxDifficulty})
	}
	if f.MainOnly {
		qb = qb.Where(sq.Eq{"follow_up_only": false})
	}
	return qb
}

// List returns questions matching the filter ordered by id.
func (s *Store) List(ctx context.Context, f question.Filter) ([]*question.Question, error) {
	query, args, err := applyFilter(psq.Select(questionColumns...).From("questions"), f).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building question query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*question.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating question rows: %w", err)
	}
	return out, nil
}

const upsertSuffix = `ON CONFLICT (id) DO UPDATE SET
	topic = EXCLUDED.topic, difficulty = EXCLUDED.difficulty, kind = EXCLUDED.kind,
	prompt = EXCLUDED.prompt, rephrase = EXCLUDED.rephrase, follow_ups = EXCLUDED.follow_ups,
	follow_up_only = EXCLUDED.follow_up_only, rubric = EXCLUDED.rubric`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Upsert inserts or replaces a question.
func (s *Store) Upsert(ctx context.Context, q *question.Question) error {
	return upsert(ctx, s.db, q)
}

// Seed upserts every question in a single transaction.
func (s *Store) Seed(ctx context.Context, questions []*question.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	for _, q := range questions {
		if err := upsert(ctx, tx, q); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func upsert(ctx context.Context, ex execer, q *question.Question) error {
	followUps, err := json.Marshal(q.FollowUps)
	if err != nil {
		return fmt.Errorf("marshaling follow-ups: %w", err)
	}
	rubric, err := json.Marshal(q.Rubric)
	if err != nil {
		return fmt.Errorf("marshaling rubric: %w", err)
	}

	query, args, err := psq.Insert("questions").
		Columns(questionColumns...).
		Values(q.ID, string(q.Topic), q.Difficulty, string(q.Kind), q.Prompt, q.Rephrase,
			followUps, q.FollowUpOnly, rubric).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("building question upsert: %w", err)
	}

	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting question %s: %w", q.ID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*question.Question, error) {
	var (
		q                 question.Question
		topic, kind       string
		followUps, rubric []byte
	)
	err := row.Scan(&q.ID, &topic, &q.Difficulty, &kind, &q.Prompt, &q.Rephrase,
		&followUps, &q.FollowUpOnly, &rubric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning question: %w", err)
	}
	q.Topic = question.Topic(topic)
	q.Kind = question.Kind(kind)
	if len(followUps) > 0 {
		if err := json.Unmarshal(followUps, &q.FollowUps); err != nil {
			return nil, fmt.Errorf("decoding follow-ups of %s: %w", q.ID, err)
		}
	}
	if len(rubric) > 0 {
		// A malformed rubric leaves the criteria empty, which callers see
		// as question.ErrRubricMissing.
		_ = json.Unmarshal(rubric, &q.Rubric)
	}
	return &q, nil
}

// Verify interface compliance.
var _ question.Bank = (*Store)(nil)
