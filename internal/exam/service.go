package exam

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"
	"time"

	"certprep/internal/auth"
	"certprep/internal/question"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptNotFinal = errors.New("attempt not final")
	ErrNoQuestions     = errors.New("no questions available")
	ErrUpstream        = errors.New("upstream failure")
)

const defaultSubmitTimeout = 10 * time.Second

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Service struct {
	attempts      AttemptStore
	public        question.PublicReader
	keyed         question.KeyedReader
	blueprint     Blueprint
	submitTimeout time.Duration
	now           func() time.Time
	shuffle       func(n int, swap func(i, j int))
}

type ServiceConfig struct {
	Blueprint     Blueprint
	SubmitTimeout time.Duration
}

type SubmittedAnswer struct {
	QuestionID  string   `json:"question_id" validate:"required"`
	UserAnswers []string `json:"user_answers"`
	IsFlagged   bool     `json:"is_flagged"`
}

type SubmitInput struct {
	AttemptID            string            `json:"attempt_id" validate:"required"`
	Answers              []SubmittedAnswer `json:"answers" validate:"required,dive"`
	TimeRemainingSeconds int               `json:"time_remaining_seconds" validate:"gte=0"`
}

type SubmissionResult struct {
	Score          int     `json:"score"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
	DomainScores   Tallies `json:"domain_scores"`
	IsPass         bool    `json:"is_pass"`
}

type CheckInput struct {
	QuestionID  string   `json:"question_id" validate:"required"`
	UserAnswers []string `json:"user_answers"`
}

type CheckResult struct {
	IsCorrect      bool     `json:"is_correct"`
	CorrectAnswers []string `json:"correct_answers"`
	Explanation    string   `json:"explanation"`
}

type StartedAttempt struct {
	Attempt          *Attempt          `json:"attempt"`
	Questions        []question.Public `json:"questions"`
	TimeLimitMinutes int               `json:"time_limit_minutes"`
}

type ReviewItem struct {
	QuestionID     string            `json:"question_id"`
	Domain         string            `json:"domain,omitempty"`
	QuestionText   string            `json:"question_text,omitempty"`
	QuestionType   question.Type     `json:"question_type,omitempty"`
	Options        []question.Option `json:"options,omitempty"`
	UserAnswers    []string          `json:"user_answers"`
	CorrectAnswers []string          `json:"correct_answers"`
	IsCorrect      bool              `json:"is_correct"`
	IsFlagged      bool              `json:"is_flagged"`
	Explanation    string            `json:"explanation,omitempty"`
}

type AttemptReview struct {
	Attempt *Attempt     `json:"attempt"`
	Items   []ReviewItem `json:"items"`
}

func NewService(attempts AttemptStore, public question.PublicReader, keyed question.KeyedReader, cfg ServiceConfig) *Service {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	return &Service{
		attempts:      attempts,
		public:        public,
		keyed:         keyed,
		blueprint:     cfg.Blueprint,
		submitTimeout: cfg.SubmitTimeout,
		now:           time.Now,
		shuffle:       rand.Shuffle,
	}
}

func (s *Service) Blueprint() Blueprint {
	return s.blueprint
}

// Submit grades answers server-side and completes the attempt exactly once.
// Once the request is validated the work is detached from the caller's
// cancellation and bounded only by the submit timeout.
func (s *Service) Submit(ctx context.Context, userID string, in SubmitInput) (*SubmissionResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, auth.ErrUnauthorized
	}
	in, err := normalizeSubmitInput(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()

	ids := make([]string, 0, len(in.Answers))
	for _, ans := range in.Answers {
		ids = append(ids, ans.QuestionID)
	}

	var (
		attempt *Attempt
		keys    map[string]question.Keyed
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.attempts.GetOpen(gctx, in.AttemptID, userID)
		if err != nil {
			return err
		}
		attempt = a
		return nil
	})
	g.Go(func() error {
		k, err := s.keyed.GetKeyed(gctx, ids)
		if err != nil {
			return err
		}
		keys = k
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, upstream("load attempt and questions", err)
	}

	batch := gradeAnswers(in.Answers, keys)
	score := Score(batch.Tallies, s.blueprint)

	records := make([]AnswerRecord, 0, len(batch.Answers))
	for _, ans := range batch.Answers {
		records = append(records, AnswerRecord{
			AttemptID:   attempt.ID,
			QuestionID:  ans.QuestionID,
			UserAnswers: ans.UserAnswers,
			IsCorrect:   ans.IsCorrect,
			IsFlagged:   ans.IsFlagged,
		})
	}

	err = s.attempts.Complete(ctx, attempt.ID, userID, CompletionResult{
		Score:                score.Scaled,
		CorrectCount:         batch.CorrectCount,
		DomainScores:         batch.Tallies,
		IsPass:               score.IsPass,
		TimeRemainingSeconds: in.TimeRemainingSeconds,
		CompletedAt:          s.now(),
	}, records)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, upstream("persist submission", err)
	}

	return &SubmissionResult{
		Score:          score.Scaled,
		CorrectCount:   batch.CorrectCount,
		TotalQuestions: len(in.Answers),
		DomainScores:   batch.Tallies,
		IsPass:         score.IsPass,
	}, nil
}

// Start draws a practice test from the public pool and opens an attempt for it.
func (s *Service) Start(ctx context.Context, userID, mode string) (*StartedAttempt, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, auth.ErrUnauthorized
	}
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = DefaultMode
	}

	pool, err := s.public.ListPublic(ctx, "")
	if err != nil {
		return nil, upstream("load question pool", err)
	}
	selected := selectQuestions(pool, s.blueprint, s.shuffle)
	if len(selected) == 0 {
		return nil, ErrNoQuestions
	}

	attempt, err := s.attempts.Create(ctx, userID, mode, len(selected))
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		return nil, upstream("create attempt", err)
	}

	return &StartedAttempt{
		Attempt:          attempt,
		Questions:        selected,
		TimeLimitMinutes: s.blueprint.TimeLimitMinutes(),
	}, nil
}

// CheckAnswer grades a single question outside of any attempt and reveals
// its key, for study mode.
func (s *Service) CheckAnswer(ctx context.Context, userID string, in CheckInput) (*CheckResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, auth.ErrUnauthorized
	}
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}

	keys, err := s.keyed.GetKeyed(ctx, []string{in.QuestionID})
	if err != nil {
		return nil, upstream("load question", err)
	}
	q, ok := keys[in.QuestionID]
	if !ok {
		return nil, question.ErrQuestionNotFound
	}

	correct := q.CorrectAnswers
	if correct == nil {
		correct = []string{}
	}
	return &CheckResult{
		IsCorrect:      Evaluate(q.CorrectAnswers, in.UserAnswers),
		CorrectAnswers: correct,
		Explanation:    q.Explanation,
	}, nil
}

func (s *Service) GetAttempt(ctx context.Context, userID, attemptID string) (*Attempt, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, auth.ErrUnauthorized
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return nil, fmt.Errorf("%w: attempt id is required", ErrInvalidRequest)
	}

	a, err := s.attempts.Get(ctx, attemptID, userID)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, upstream("load attempt", err)
	}
	return a, nil
}

// Review joins a completed attempt's answers with their keys. Keys are never
// revealed while the attempt is still open.
func (s *Service) Review(ctx context.Context, userID, attemptID string) (*AttemptReview, error) {
	a, err := s.GetAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.Completed() {
		return nil, ErrAttemptNotFinal
	}

	answers, err := s.attempts.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, upstream("load answers", err)
	}
	ids := make([]string, 0, len(answers))
	for _, ans := range answers {
		ids = append(ids, ans.QuestionID)
	}
	keys, err := s.keyed.GetKeyed(ctx, ids)
	if err != nil {
		return nil, upstream("load questions", err)
	}

	items := make([]ReviewItem, 0, len(answers))
	for _, ans := range answers {
		item := ReviewItem{
			QuestionID:     ans.QuestionID,
			UserAnswers:    ans.UserAnswers,
			CorrectAnswers: []string{},
			IsCorrect:      ans.IsCorrect,
			IsFlagged:      ans.IsFlagged,
		}
		if item.UserAnswers == nil {
			item.UserAnswers = []string{}
		}
		if q, ok := keys[ans.QuestionID]; ok {
			item.Domain = q.Domain
			item.QuestionText = q.Text
			item.QuestionType = q.Type
			item.Options = q.Options
			item.Explanation = q.Explanation
			if q.CorrectAnswers != nil {
				item.CorrectAnswers = q.CorrectAnswers
			}
		}
		items = append(items, item)
	}

	return &AttemptReview{Attempt: a, Items: items}, nil
}

// History lists completed attempts, most recent first.
func (s *Service) History(ctx context.Context, userID, mode string, limit int) ([]Attempt, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, auth.ErrUnauthorized
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	items, err := s.attempts.ListCompleted(ctx, userID, mode, limit)
	if err != nil {
		return nil, upstream("list attempts", err)
	}
	return items, nil
}

func normalizeSubmitInput(in SubmitInput) (SubmitInput, error) {
	in.AttemptID = strings.TrimSpace(in.AttemptID)
	for i := range in.Answers {
		in.Answers[i].QuestionID = strings.TrimSpace(in.Answers[i].QuestionID)
	}
	if err := validate.Struct(in); err != nil {
		return SubmitInput{}, invalid(err)
	}

	seen := make(map[string]struct{}, len(in.Answers))
	for _, ans := range in.Answers {
		if _, dup := seen[ans.QuestionID]; dup {
			return SubmitInput{}, fmt.Errorf("%w: duplicate answer for question %s", ErrInvalidRequest, ans.QuestionID)
		}
		seen[ans.QuestionID] = struct{}{}
	}
	return in, nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %s", ErrInvalidRequest, fieldName(fe.Namespace()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

// fieldName drops the struct prefix validator puts on namespaces.
func fieldName(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
