package exam

import (
	"math"
	"sort"
	"strings"

	"certprep/internal/question"
)

type DomainTally struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Tallies maps a domain id to its correct/total counts.
type Tallies map[string]DomainTally

func (t Tallies) Record(domain string, correct bool) {
	d := t[domain]
	d.Total++
	if correct {
		d.Correct++
	}
	t[domain] = d
}

type ScoreResult struct {
	Scaled   int     `json:"score"`
	Weighted float64 `json:"weighted"`
	IsPass   bool    `json:"is_pass"`
}

// Evaluate reports whether the selected options are exactly the correct set.
// Order and duplicates are ignored. There is no partial credit, and an empty
// key never grades as correct.
func Evaluate(correctAnswers, userAnswers []string) bool {
	correct := normalizeStringSet(correctAnswers)
	if len(correct) == 0 {
		return false
	}
	selected := normalizeStringSet(userAnswers)
	if len(selected) == 0 {
		return false
	}
	return equalSet(selected, correct)
}

// ScaledScore reduces tallies to a 0..maxScore integer. Domains with no graded
// questions contribute nothing and their weight is not redistributed. The sum
// runs in domain order so the result never depends on map iteration.
func ScaledScore(tallies Tallies, domains []Domain, maxScore int) (int, float64) {
	weighted := 0.0
	for _, d := range domains {
		t, ok := tallies[d.ID]
		if !ok || t.Total <= 0 {
			continue
		}
		accuracy := float64(t.Correct) / float64(t.Total)
		weighted += accuracy * d.Weight
	}
	return int(math.Round(weighted * float64(maxScore))), weighted
}

// Score applies the blueprint weights and passing threshold.
func Score(tallies Tallies, bp Blueprint) ScoreResult {
	scaled, weighted := ScaledScore(tallies, bp.domains, bp.maxScore)
	return ScoreResult{
		Scaled:   scaled,
		Weighted: weighted,
		IsPass:   scaled >= bp.passingScore,
	}
}

type gradedAnswer struct {
	QuestionID  string
	UserAnswers []string
	IsCorrect   bool
	IsFlagged   bool
}

type gradedBatch struct {
	Answers      []gradedAnswer
	Tallies      Tallies
	CorrectCount int
}

// gradeAnswers evaluates every submitted answer against the keyed questions.
// Answers for unknown question ids are kept and graded incorrect but do not
// touch any domain tally.
func gradeAnswers(answers []SubmittedAnswer, keys map[string]question.Keyed) gradedBatch {
	out := gradedBatch{
		Answers: make([]gradedAnswer, 0, len(answers)),
		Tallies: Tallies{},
	}
	for _, ans := range answers {
		selected := normalizeStringSet(ans.UserAnswers)
		graded := gradedAnswer{
			QuestionID:  strings.TrimSpace(ans.QuestionID),
			UserAnswers: selected,
			IsFlagged:   ans.IsFlagged,
		}
		if q, ok := keys[graded.QuestionID]; ok {
			graded.IsCorrect = Evaluate(q.CorrectAnswers, selected)
			out.Tallies.Record(q.Domain, graded.IsCorrect)
			if graded.IsCorrect {
				out.CorrectCount++
			}
		}
		out.Answers = append(out.Answers, graded)
	}
	return out
}

func normalizeStringSet(in []string) []string {
	set := map[string]struct{}{}
	for _, v := range in {
		s := strings.TrimSpace(v)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equalSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	aa := append([]string(nil), a...)
	bb := append([]string(nil), b...)
	sort.Strings(aa)
	sort.Strings(bb)
	for i := range aa {
		if aa[i] != bb[i] {
			return false
		}
	}
	return true
}
