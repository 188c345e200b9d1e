package exam

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidBlueprint = errors.New("invalid exam blueprint")

const weightSumTolerance = 1e-6

// Domain is one weighted topic category of the exam.
type Domain struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Weight        float64 `json:"weight"`
	QuestionCount int     `json:"question_count"`
}

type BlueprintConfig struct {
	Domains          []Domain
	MaxScore         int
	PassingScore     int
	TotalQuestions   int
	TimeLimitMinutes int
}

// Blueprint is the immutable exam configuration shared by scoring, question
// selection and the client-facing blueprint endpoint. Build it with
// NewBlueprint; the zero value is not usable.
type Blueprint struct {
	domains          []Domain
	index            map[string]int
	maxScore         int
	passingScore     int
	totalQuestions   int
	timeLimitMinutes int
}

func NewBlueprint(cfg BlueprintConfig) (Blueprint, error) {
	if len(cfg.Domains) == 0 {
		return Blueprint{}, fmt.Errorf("%w: at least one domain is required", ErrInvalidBlueprint)
	}
	if cfg.MaxScore <= 0 {
		return Blueprint{}, fmt.Errorf("%w: max score must be positive", ErrInvalidBlueprint)
	}
	if cfg.PassingScore < 0 || cfg.PassingScore > cfg.MaxScore {
		return Blueprint{}, fmt.Errorf("%w: passing score must be within 0..%d", ErrInvalidBlueprint, cfg.MaxScore)
	}

	domains := make([]Domain, 0, len(cfg.Domains))
	index := make(map[string]int, len(cfg.Domains))
	sum := 0.0
	counted := 0
	for _, d := range cfg.Domains {
		d.ID = strings.TrimSpace(d.ID)
		d.Name = strings.TrimSpace(d.Name)
		if d.ID == "" {
			return Blueprint{}, fmt.Errorf("%w: domain id is required", ErrInvalidBlueprint)
		}
		if _, dup := index[d.ID]; dup {
			return Blueprint{}, fmt.Errorf("%w: duplicate domain %s", ErrInvalidBlueprint, d.ID)
		}
		if d.Weight < 0 || math.IsNaN(d.Weight) || math.IsInf(d.Weight, 0) {
			return Blueprint{}, fmt.Errorf("%w: domain %s has invalid weight", ErrInvalidBlueprint, d.ID)
		}
		if d.QuestionCount < 0 {
			return Blueprint{}, fmt.Errorf("%w: domain %s has negative question count", ErrInvalidBlueprint, d.ID)
		}
		index[d.ID] = len(domains)
		domains = append(domains, d)
		sum += d.Weight
		counted += d.QuestionCount
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return Blueprint{}, fmt.Errorf("%w: domain weights sum to %.6f, want 1.0", ErrInvalidBlueprint, sum)
	}

	total := cfg.TotalQuestions
	if total <= 0 {
		total = counted
	}
	if total <= 0 {
		return Blueprint{}, fmt.Errorf("%w: total questions must be positive", ErrInvalidBlueprint)
	}

	limit := cfg.TimeLimitMinutes
	if limit <= 0 {
		limit = 115
	}

	return Blueprint{
		domains:          domains,
		index:            index,
		maxScore:         cfg.MaxScore,
		passingScore:     cfg.PassingScore,
		totalQuestions:   total,
		timeLimitMinutes: limit,
	}, nil
}

// DefaultBlueprint is the SnowPro Core layout: five domains, 100 questions,
// scaled to 1000 with a passing mark of 750.
func DefaultBlueprint() Blueprint {
	bp, err := NewBlueprint(BlueprintConfig{
		Domains:          DefaultDomains(),
		MaxScore:         1000,
		PassingScore:     750,
		TotalQuestions:   100,
		TimeLimitMinutes: 115,
	})
	if err != nil {
		panic(err)
	}
	return bp
}

func DefaultDomains() []Domain {
	return []Domain{
		{ID: "1.0", Name: "Snowflake AI Data Cloud Features & Architecture", Weight: 0.31, QuestionCount: 31},
		{ID: "2.0", Name: "Account Management and Data Governance", Weight: 0.20, QuestionCount: 20},
		{ID: "3.0", Name: "Data Loading, Unloading, and Connectivity", Weight: 0.18, QuestionCount: 18},
		{ID: "4.0", Name: "Performance Optimization, Querying, and Transformation", Weight: 0.21, QuestionCount: 21},
		{ID: "5.0", Name: "Data Collaboration", Weight: 0.10, QuestionCount: 10},
	}
}

// ParseDomains reads the EXAM_DOMAINS format: entries separated by ';', each
// entry "id|weight|count|name" where count and name are optional.
func ParseDomains(raw string) ([]Domain, error) {
	out := make([]Domain, 0)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 4)
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: domain entry %q needs id|weight", ErrInvalidBlueprint, entry)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: domain entry %q has bad weight", ErrInvalidBlueprint, entry)
		}
		d := Domain{ID: strings.TrimSpace(parts[0]), Weight: weight}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, fmt.Errorf("%w: domain entry %q has bad count", ErrInvalidBlueprint, entry)
			}
			d.QuestionCount = n
		}
		if len(parts) > 3 {
			d.Name = strings.TrimSpace(parts[3])
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no domains in %q", ErrInvalidBlueprint, raw)
	}
	return out, nil
}

func (b Blueprint) Domains() []Domain {
	return append([]Domain(nil), b.domains...)
}

func (b Blueprint) Domain(id string) (Domain, bool) {
	i, ok := b.index[id]
	if !ok {
		return Domain{}, false
	}
	return b.domains[i], true
}

func (b Blueprint) MaxScore() int         { return b.maxScore }
func (b Blueprint) PassingScore() int     { return b.passingScore }
func (b Blueprint) TotalQuestions() int   { return b.totalQuestions }
func (b Blueprint) TimeLimitMinutes() int { return b.timeLimitMinutes }

func (b Blueprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Domains          []Domain `json:"domains"`
		MaxScore         int      `json:"max_score"`
		PassingScore     int      `json:"passing_score"`
		TotalQuestions   int      `json:"total_questions"`
		TimeLimitMinutes int      `json:"time_limit_minutes"`
	}{
		Domains:          b.domains,
		MaxScore:         b.maxScore,
		PassingScore:     b.passingScore,
		TotalQuestions:   b.totalQuestions,
		TimeLimitMinutes: b.timeLimitMinutes,
	})
}
