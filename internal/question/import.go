package question

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Column layout of the question bank export: Question, Choices, Correct
// Answer(s), Difficulty, Domain, Explanation, Question Type, Source URL.
const (
	colQuestion    = "question"
	colChoices     = "choices"
	colCorrect     = "correct_answers"
	colDomain      = "domain"
	colExplanation = "explanation"
	colType        = "question_type"
	colID          = "id"
)

var (
	questionNamespace = uuid.MustParse("6f1c3b8e-2a4d-4c1e-9b7a-52d0f3a9e8c1")
	domainPrefix      = regexp.MustCompile(`^(\d+\.\d+)`)
	optionLine        = regexp.MustCompile(`^([A-F])\.\s+(.*)$`)
)

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Domains     []string         `json:"domains"`
	Errors      []ImportRowError `json:"errors"`
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportCSV upserts every valid row of a question bank CSV. Rows without an
// id column get a stable id derived from domain and text, so importing the
// same file twice updates rather than duplicates.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (*ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", ErrInvalidInput, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		if n := normalizeHeader(h); n != "" {
			index[n] = i
		}
	}
	for _, col := range []string{colQuestion, colChoices, colCorrect, colDomain} {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidInput, col)
		}
	}

	report := &ImportReport{Domains: make([]string, 0), Errors: make([]ImportRowError, 0)}
	seenDomains := make(map[string]struct{})
	rowNo := 1
	for {
		rowNo++
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.TotalRows++
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: fmt.Sprintf("csv parse error: %v", err)})
			continue
		}
		if isRowEmpty(rec) {
			continue
		}
		report.TotalRows++

		in := inputFromRow(rec, index)
		q, err := s.Put(ctx, in)
		if err != nil {
			if !errors.Is(err, ErrInvalidInput) {
				return report, fmt.Errorf("import row %d: %w", rowNo, err)
			}
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: err.Error()})
			continue
		}
		report.SuccessRows++
		if _, ok := seenDomains[q.Domain]; !ok {
			seenDomains[q.Domain] = struct{}{}
			report.Domains = append(report.Domains, q.Domain)
		}
	}
	return report, nil
}

func inputFromRow(rec []string, index map[string]int) Input {
	text := cell(rec, index, colQuestion)
	domain := mapDomain(cell(rec, index, colDomain))

	qType := SingleSelect
	if strings.Contains(strings.ToLower(cell(rec, index, colType)), "select") {
		qType = MultiSelect
	}

	id := cell(rec, index, colID)
	if id == "" && text != "" {
		id = uuid.NewSHA1(questionNamespace, []byte(domain+"\x00"+text)).String()
	}

	return Input{
		ID:             id,
		Domain:         domain,
		Text:           text,
		Type:           qType,
		Options:        parseChoices(cell(rec, index, colChoices)),
		CorrectAnswers: splitAnswers(cell(rec, index, colCorrect)),
		Explanation:    cell(rec, index, colExplanation),
	}
}

// parseChoices reads "A. text" lines. Lines that do not start a new option
// continue the previous one.
func parseChoices(raw string) []Option {
	out := make([]Option, 0, 4)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if m := optionLine.FindStringSubmatch(trimmed); m != nil {
			out = append(out, Option{ID: m[1], Text: strings.TrimSpace(m[2])})
			continue
		}
		if len(out) > 0 && trimmed != "" {
			out[len(out)-1].Text += "\n" + trimmed
		}
	}
	return out
}

func splitAnswers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mapDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := domainPrefix.FindString(raw); m != "" {
		return m
	}
	return raw
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	switch h {
	case "question", "question_text", "question text":
		return colQuestion
	case "choices", "options":
		return colChoices
	case "correct answer(s)", "correct answer", "correct_answers", "correct answers":
		return colCorrect
	case "domain":
		return colDomain
	case "explanation":
		return colExplanation
	case "question type", "question_type", "type":
		return colType
	case "id", "question_id":
		return colID
	default:
		return ""
	}
}

func cell(rec []string, index map[string]int, key string) string {
	i, ok := index[key]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isRowEmpty(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
