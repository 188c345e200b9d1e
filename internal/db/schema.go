package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are unix milliseconds and JSON columns are TEXT so the same DDL
// runs on Postgres and SQLite.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL DEFAULT 'single',
		options_json TEXT NOT NULL,
		correct_answers_json TEXT NOT NULL,
		explanation TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_domain ON questions (domain)`,
	`CREATE TABLE IF NOT EXISTS test_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		total_questions INTEGER NOT NULL,
		created_at BIGINT NOT NULL,
		completed_at BIGINT,
		score INTEGER,
		correct_count INTEGER,
		domain_scores_json TEXT,
		is_pass BOOLEAN,
		time_remaining_seconds INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_test_attempts_user ON test_attempts (user_id, completed_at)`,
	`CREATE TABLE IF NOT EXISTS test_answers (
		attempt_id TEXT NOT NULL REFERENCES test_attempts (id) ON DELETE CASCADE,
		question_id TEXT NOT NULL,
		user_answers_json TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL,
		is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
		answered_at BIGINT,
		PRIMARY KEY (attempt_id, question_id)
	)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
