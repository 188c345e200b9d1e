package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:    db,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

const attemptColumns = `
	id,
	user_id,
	mode,
	total_questions,
	created_at,
	completed_at,
	score,
	correct_count,
	domain_scores_json,
	is_pass,
	time_remaining_seconds`

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) Create(ctx context.Context, userID, mode string, totalQuestions int) (*Attempt, error) {
	userID = strings.TrimSpace(userID)
	mode = strings.TrimSpace(mode)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if mode == "" {
		mode = DefaultMode
	}
	if totalQuestions < 0 {
		return nil, fmt.Errorf("%w: total questions must not be negative", ErrInvalidRequest)
	}

	createdAt := time.UnixMilli(s.now().UnixMilli()).UTC()
	a := &Attempt{
		ID:             s.newID(),
		UserID:         userID,
		Mode:           mode,
		TotalQuestions: totalQuestions,
		CreatedAt:      createdAt,
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO test_attempts (id, user_id, mode, total_questions, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.UserID, a.Mode, a.TotalQuestions, createdAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

func (s *SQLStore) Get(ctx context.Context, attemptID, userID string) (*Attempt, error) {
	return s.loadAttempt(ctx, s.db, `
		SELECT`+attemptColumns+`
		FROM test_attempts
		WHERE id = $1 AND user_id = $2
	`, attemptID, userID)
}

func (s *SQLStore) GetOpen(ctx context.Context, attemptID, userID string) (*Attempt, error) {
	return s.loadAttempt(ctx, s.db, `
		SELECT`+attemptColumns+`
		FROM test_attempts
		WHERE id = $1 AND user_id = $2 AND completed_at IS NULL
	`, attemptID, userID)
}

func (s *SQLStore) Complete(ctx context.Context, attemptID, userID string, result CompletionResult, answers []AnswerRecord) error {
	domainJSON, err := json.Marshal(result.DomainScores)
	if err != nil {
		return fmt.Errorf("encode domain scores: %w", err)
	}
	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The completed_at guard makes this the only place an attempt can leave
	// the open state. Concurrent callers race on the row and all but one
	// see zero affected rows.
	res, err := tx.ExecContext(ctx, `
		UPDATE test_attempts
		SET completed_at = $3,
			score = $4,
			correct_count = $5,
			domain_scores_json = $6,
			is_pass = $7,
			time_remaining_seconds = $8
		WHERE id = $1
			AND user_id = $2
			AND completed_at IS NULL
	`, attemptID, userID, completedAt.UnixMilli(), result.Score, result.CorrectCount, string(domainJSON), result.IsPass, result.TimeRemainingSeconds)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete attempt rows affected: %w", err)
	}
	if affected != 1 {
		return ErrAttemptNotFound
	}

	for _, ans := range answers {
		selected := ans.UserAnswers
		if selected == nil {
			selected = []string{}
		}
		selectedJSON, err := json.Marshal(selected)
		if err != nil {
			return fmt.Errorf("encode user answers: %w", err)
		}
		var answeredAt interface{}
		if len(selected) > 0 {
			answeredAt = completedAt.UnixMilli()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO test_answers (attempt_id, question_id, user_answers_json, is_correct, is_flagged, answered_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, attemptID, ans.QuestionID, string(selectedJSON), ans.IsCorrect, ans.IsFlagged, answeredAt); err != nil {
			return fmt.Errorf("insert test answer %s: %w", ans.QuestionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete: %w", err)
	}
	return nil
}

func (s *SQLStore) ListCompleted(ctx context.Context, userID, mode string, limit int) ([]Attempt, error) {
	query := `
		SELECT` + attemptColumns + `
		FROM test_attempts
		WHERE user_id = $1 AND completed_at IS NOT NULL`
	args := []interface{}{userID}
	if strings.TrimSpace(mode) != "" {
		args = append(args, strings.TrimSpace(mode))
		query += fmt.Sprintf(` AND mode = $%d`, len(args))
	}
	query += ` ORDER BY completed_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed attempts: %w", err)
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attempt_id, question_id, user_answers_json, is_correct, is_flagged, answered_at
		FROM test_answers
		WHERE attempt_id = $1
		ORDER BY question_id ASC
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list test answers: %w", err)
	}
	defer rows.Close()

	out := make([]AnswerRecord, 0)
	for rows.Next() {
		var (
			rec          AnswerRecord
			selectedJSON string
			answeredAt   sql.NullInt64
		)
		if err := rows.Scan(&rec.AttemptID, &rec.QuestionID, &selectedJSON, &rec.IsCorrect, &rec.IsFlagged, &answeredAt); err != nil {
			return nil, fmt.Errorf("scan test answer: %w", err)
		}
		if err := json.Unmarshal([]byte(selectedJSON), &rec.UserAnswers); err != nil {
			return nil, fmt.Errorf("decode user answers of %s: %w", rec.QuestionID, err)
		}
		if answeredAt.Valid {
			t := time.UnixMilli(answeredAt.Int64).UTC()
			rec.AnsweredAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test answers: %w", err)
	}
	return out, nil
}

func (s *SQLStore) loadAttempt(ctx context.Context, q queryable, query string, args ...interface{}) (*Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var (
		a             Attempt
		createdAt     int64
		completedAt   sql.NullInt64
		score         sql.NullInt64
		correctCount  sql.NullInt64
		domainJSON    sql.NullString
		isPass        sql.NullBool
		timeRemaining sql.NullInt64
	)
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Mode,
		&a.TotalQuestions,
		&createdAt,
		&completedAt,
		&score,
		&correctCount,
		&domainJSON,
		&isPass,
		&timeRemaining,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		a.CompletedAt = &t
	}
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	if correctCount.Valid {
		v := int(correctCount.Int64)
		a.CorrectCount = &v
	}
	if isPass.Valid {
		v := isPass.Bool
		a.IsPass = &v
	}
	if timeRemaining.Valid {
		v := int(timeRemaining.Int64)
		a.TimeRemainingSeconds = &v
	}
	if domainJSON.Valid && domainJSON.String != "" {
		if err := json.Unmarshal([]byte(domainJSON.String), &a.DomainScores); err != nil {
			return nil, fmt.Errorf("decode domain scores of %s: %w", a.ID, err)
		}
	}
	return &a, nil
}
