package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"certprep/internal/exam"

	"github.com/xuri/excelize/v2"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	recentAttempts = 10
	exportMaxRows  = 10000
)

type historySource interface {
	ListCompleted(ctx context.Context, userID, mode string, limit int) ([]exam.Attempt, error)
}

type Service struct {
	history   historySource
	blueprint exam.Blueprint
}

type DomainProgress struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

type Progress struct {
	CompletedTests int              `json:"completed_tests"`
	AverageScore   int              `json:"average_score"`
	PassRate       int              `json:"pass_rate"`
	BestScore      int              `json:"best_score"`
	Domains        []DomainProgress `json:"domains"`
	Recent         []exam.Attempt   `json:"recent"`
}

func NewService(history historySource, blueprint exam.Blueprint) *Service {
	return &Service{history: history, blueprint: blueprint}
}

// ProgressFor aggregates every completed attempt of the user. Averages and
// the pass rate are rounded to whole numbers.
func (s *Service) ProgressFor(ctx context.Context, userID, mode string) (*Progress, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthorized
	}
	attempts, err := s.history.ListCompleted(ctx, userID, mode, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return s.aggregate(attempts), nil
}

func (s *Service) aggregate(attempts []exam.Attempt) *Progress {
	out := &Progress{
		CompletedTests: len(attempts),
		Domains:        []DomainProgress{},
		Recent:         []exam.Attempt{},
	}
	if len(attempts) == 0 {
		return out
	}

	sum, passed := 0, 0
	totals := exam.Tallies{}
	for i, a := range attempts {
		score := 0
		if a.Score != nil {
			score = *a.Score
		}
		sum += score
		if i == 0 || score > out.BestScore {
			out.BestScore = score
		}
		if a.IsPass != nil && *a.IsPass {
			passed++
		}
		for domain, t := range a.DomainScores {
			agg := totals[domain]
			agg.Correct += t.Correct
			agg.Total += t.Total
			totals[domain] = agg
		}
	}
	out.AverageScore = int(math.Round(float64(sum) / float64(len(attempts))))
	out.PassRate = int(math.Round(float64(passed) / float64(len(attempts)) * 100))

	// Blueprint domains first in blueprint order, then anything else by id.
	seen := make(map[string]struct{}, len(totals))
	for _, d := range s.blueprint.Domains() {
		seen[d.ID] = struct{}{}
		out.Domains = append(out.Domains, domainProgress(d.ID, d.Name, totals[d.ID]))
	}
	extra := make([]string, 0)
	for id := range totals {
		if _, ok := seen[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out.Domains = append(out.Domains, domainProgress(id, "", totals[id]))
	}

	n := len(attempts)
	if n > recentAttempts {
		n = recentAttempts
	}
	out.Recent = append(out.Recent, attempts[:n]...)
	return out
}

func domainProgress(id, name string, t exam.DomainTally) DomainProgress {
	p := DomainProgress{ID: id, Name: name, Correct: t.Correct, Total: t.Total}
	if t.Total > 0 {
		p.Accuracy = math.Round(float64(t.Correct)/float64(t.Total)*1000) / 10
	}
	return p
}

// ExportHistoryExcel renders the user's completed attempts and domain totals
// as an XLSX workbook.
func (s *Service) ExportHistoryExcel(ctx context.Context, userID, mode string) ([]byte, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthorized
	}
	attempts, err := s.history.ListCompleted(ctx, userID, mode, exportMaxRows)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	progress := s.aggregate(attempts)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "History"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	headers := []string{"attempt_id", "mode", "completed_at", "score", "correct_count", "total_questions", "is_pass", "time_remaining_seconds"}
	writeRow(f, sheet, 1, toAny(headers))
	for i, a := range attempts {
		completed := ""
		if a.CompletedAt != nil {
			completed = a.CompletedAt.UTC().Format(time.RFC3339)
		}
		writeRow(f, sheet, i+2, []any{
			a.ID,
			a.Mode,
			completed,
			intOrZero(a.Score),
			intOrZero(a.CorrectCount),
			a.TotalQuestions,
			a.IsPass != nil && *a.IsPass,
			intOrZero(a.TimeRemainingSeconds),
		})
	}
	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "H", 20)

	domainSheet := "Domains"
	if _, err := f.NewSheet(domainSheet); err != nil {
		return nil, fmt.Errorf("create domain sheet: %w", err)
	}
	writeRow(f, domainSheet, 1, []any{"domain", "name", "correct", "total", "accuracy_pct"})
	for i, d := range progress.Domains {
		writeRow(f, domainSheet, i+2, []any{d.ID, d.Name, d.Correct, d.Total, d.Accuracy})
	}
	_ = f.SetColWidth(domainSheet, "B", "B", 48)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
