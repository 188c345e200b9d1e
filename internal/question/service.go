package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
)

type Type string

const (
	SingleSelect Type = "single"
	MultiSelect  Type = "multi"
)

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Public is the projection safe to hand to a test taker before grading.
type Public struct {
	ID      string   `json:"id"`
	Domain  string   `json:"domain"`
	Text    string   `json:"question_text"`
	Type    Type     `json:"question_type"`
	Options []Option `json:"options"`
}

// Keyed carries the answer key and must only reach trusted code paths.
type Keyed struct {
	ID             string   `json:"id"`
	Domain         string   `json:"domain"`
	Text           string   `json:"question_text"`
	Type           Type     `json:"question_type"`
	Options        []Option `json:"options"`
	CorrectAnswers []string `json:"correct_answers"`
	Explanation    string   `json:"explanation,omitempty"`
}

type Input struct {
	ID             string
	Domain         string
	Text           string
	Type           Type
	Options        []Option
	CorrectAnswers []string
	Explanation    string
}

type PublicReader interface {
	ListPublic(ctx context.Context, domain string) ([]Public, error)
}

// KeyedReader loads answer keys for exactly the requested ids. Unknown ids
// are absent from the result rather than an error.
type KeyedReader interface {
	GetKeyed(ctx context.Context, ids []string) (map[string]Keyed, error)
}

// keyedChunk keeps IN lists well under the bind parameter limits of both
// Postgres and SQLite.
const keyedChunk = 500

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Put inserts or replaces a question.
func (s *Service) Put(ctx context.Context, in Input) (*Public, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	correctJSON, err := json.Marshal(in.CorrectAnswers)
	if err != nil {
		return nil, fmt.Errorf("encode correct answers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questions (id, domain, question_text, question_type, options_json, correct_answers_json, explanation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			domain = excluded.domain,
			question_text = excluded.question_text,
			question_type = excluded.question_type,
			options_json = excluded.options_json,
			correct_answers_json = excluded.correct_answers_json,
			explanation = excluded.explanation
	`, in.ID, in.Domain, in.Text, string(in.Type), string(optionsJSON), string(correctJSON), in.Explanation, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("put question: %w", err)
	}

	return &Public{ID: in.ID, Domain: in.Domain, Text: in.Text, Type: in.Type, Options: in.Options}, nil
}

// ListPublic returns the public projection, optionally filtered by domain.
// The query never selects answer or explanation columns.
func (s *Service) ListPublic(ctx context.Context, domain string) ([]Public, error) {
	domain = strings.TrimSpace(domain)
	query := `SELECT id, domain, question_text, question_type, options_json FROM questions`
	args := []any{}
	if domain != "" {
		query += ` WHERE domain = $1`
		args = append(args, domain)
	}
	query += ` ORDER BY domain ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	out := make([]Public, 0)
	for rows.Next() {
		var (
			q           Public
			qType       string
			optionsJSON string
		)
		if err := rows.Scan(&q.ID, &q.Domain, &q.Text, &qType, &optionsJSON); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = Type(qType)
		if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (s *Service) GetKeyed(ctx context.Context, ids []string) (map[string]Keyed, error) {
	unique := dedupeIDs(ids)
	out := make(map[string]Keyed, len(unique))
	for start := 0; start < len(unique); start += keyedChunk {
		end := start + keyedChunk
		if end > len(unique) {
			end = len(unique)
		}
		if err := s.loadKeyed(ctx, unique[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetOneKeyed returns ErrQuestionNotFound for an unknown id.
func (s *Service) GetOneKeyed(ctx context.Context, id string) (*Keyed, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: question id is required", ErrInvalidInput)
	}
	found, err := s.GetKeyed(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	q, ok := found[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return &q, nil
}

func (s *Service) loadKeyed(ctx context.Context, ids []string, out map[string]Keyed) error {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, question_text, question_type, options_json, correct_answers_json, COALESCE(explanation, '')
		FROM questions
		WHERE id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("load answer keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q           Keyed
			qType       string
			optionsJSON string
			correctJSON string
		)
		if err := rows.Scan(&q.ID, &q.Domain, &q.Text, &qType, &optionsJSON, &correctJSON, &q.Explanation); err != nil {
			return fmt.Errorf("scan answer key: %w", err)
		}
		q.Type = Type(qType)
		if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
			return fmt.Errorf("decode options of %s: %w", q.ID, err)
		}
		// A corrupt key grades as incorrect rather than failing the submission.
		if err := json.Unmarshal([]byte(correctJSON), &q.CorrectAnswers); err != nil {
			q.CorrectAnswers = nil
		}
		out[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate answer keys: %w", err)
	}
	return nil
}

func normalizeInput(in Input) (Input, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Domain = strings.TrimSpace(in.Domain)
	in.Text = strings.TrimSpace(in.Text)
	in.Explanation = strings.TrimSpace(in.Explanation)
	if in.ID == "" || in.Domain == "" || in.Text == "" {
		return Input{}, fmt.Errorf("%w: id, domain and question_text are required", ErrInvalidInput)
	}

	switch Type(strings.ToLower(strings.TrimSpace(string(in.Type)))) {
	case "", SingleSelect:
		in.Type = SingleSelect
	case MultiSelect:
		in.Type = MultiSelect
	default:
		return Input{}, fmt.Errorf("%w: unsupported question_type %q", ErrInvalidInput, in.Type)
	}

	if len(in.Options) < 2 {
		return Input{}, fmt.Errorf("%w: at least 2 options are required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(in.Options))
	options := make([]Option, 0, len(in.Options))
	for _, opt := range in.Options {
		opt.ID = strings.TrimSpace(opt.ID)
		opt.Text = strings.TrimSpace(opt.Text)
		if opt.ID == "" {
			return Input{}, fmt.Errorf("%w: option id is required", ErrInvalidInput)
		}
		if _, dup := seen[opt.ID]; dup {
			return Input{}, fmt.Errorf("%w: duplicate option %s", ErrInvalidInput, opt.ID)
		}
		seen[opt.ID] = struct{}{}
		options = append(options, opt)
	}
	in.Options = options

	correct := dedupeIDs(in.CorrectAnswers)
	if len(correct) == 0 {
		return Input{}, fmt.Errorf("%w: at least 1 correct answer is required", ErrInvalidInput)
	}
	for _, c := range correct {
		if _, ok := seen[c]; !ok {
			return Input{}, fmt.Errorf("%w: correct answer %s is not an option", ErrInvalidInput, c)
		}
	}
	if in.Type == SingleSelect && len(correct) != 1 {
		return Input{}, fmt.Errorf("%w: single-select needs exactly 1 correct answer", ErrInvalidInput)
	}
	in.CorrectAnswers = correct
	return in, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
