package exam

import (
	"context"
	"time"
)

const DefaultMode = "practice"

// Attempt is one test sitting. It is open until CompletedAt is set, and the
// result fields are only populated once it is completed.
type Attempt struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Mode                 string     `json:"mode"`
	TotalQuestions       int        `json:"total_questions"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	Score                *int       `json:"score,omitempty"`
	CorrectCount         *int       `json:"correct_count,omitempty"`
	DomainScores         Tallies    `json:"domain_scores,omitempty"`
	IsPass               *bool      `json:"is_pass,omitempty"`
	TimeRemainingSeconds *int       `json:"time_remaining_seconds,omitempty"`
}

func (a Attempt) Completed() bool {
	return a.CompletedAt != nil
}

// CompletionResult is written to an attempt in a single conditional update.
type CompletionResult struct {
	Score                int
	CorrectCount         int
	DomainScores         Tallies
	IsPass               bool
	TimeRemainingSeconds int
	CompletedAt          time.Time
}

type AnswerRecord struct {
	AttemptID   string     `json:"attempt_id"`
	QuestionID  string     `json:"question_id"`
	UserAnswers []string   `json:"user_answers"`
	IsCorrect   bool       `json:"is_correct"`
	IsFlagged   bool       `json:"is_flagged"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty"`
}

// AttemptStore owns the open -> completed lifecycle. Lookups scoped by owner
// return ErrAttemptNotFound for attempts that are missing or belong to
// someone else, so callers cannot tell the two apart.
type AttemptStore interface {
	Create(ctx context.Context, userID, mode string, totalQuestions int) (*Attempt, error)
	Get(ctx context.Context, attemptID, userID string) (*Attempt, error)
	GetOpen(ctx context.Context, attemptID, userID string) (*Attempt, error)
	// Complete flips an open attempt to completed and stores its answers in
	// one transaction. It returns ErrAttemptNotFound when no open attempt
	// with that id exists for userID, including when it was already completed.
	Complete(ctx context.Context, attemptID, userID string, result CompletionResult, answers []AnswerRecord) error
	ListCompleted(ctx context.Context, userID, mode string, limit int) ([]Attempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]AnswerRecord, error)
}
