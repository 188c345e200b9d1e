package exam

import (
	"math/rand"
	"testing"

	"certprep/internal/question"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		correct  []string
		selected []string
		want     bool
	}{
		{name: "single correct", correct: []string{"A"}, selected: []string{"A"}, want: true},
		{name: "extra option", correct: []string{"A"}, selected: []string{"A", "B"}, want: false},
		{name: "unanswered", correct: []string{"A"}, selected: []string{}, want: false},
		{name: "nil answers", correct: []string{"A"}, selected: nil, want: false},
		{name: "order independent", correct: []string{"B", "A"}, selected: []string{"A", "B"}, want: true},
		{name: "missing one of multi", correct: []string{"A", "D"}, selected: []string{"A"}, want: false},
		{name: "duplicates collapse", correct: []string{"A", "B"}, selected: []string{"A", "A", "B"}, want: true},
		{name: "duplicates do not fill cardinality", correct: []string{"A", "B"}, selected: []string{"A", "A"}, want: false},
		{name: "whitespace trimmed", correct: []string{"C"}, selected: []string{" C "}, want: true},
		{name: "empty key never correct", correct: []string{}, selected: []string{}, want: false},
		{name: "empty key with answer", correct: nil, selected: []string{"A"}, want: false},
		{name: "wrong option", correct: []string{"B"}, selected: []string{"A"}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.correct, tc.selected); got != tc.want {
				t.Fatalf("Evaluate(%v, %v) = %v, want %v", tc.correct, tc.selected, got, tc.want)
			}
		})
	}
}

func TestScoreReferenceScenario(t *testing.T) {
	tallies := Tallies{
		"1.0": {Correct: 28, Total: 31},
		"2.0": {Correct: 15, Total: 20},
		"3.0": {Correct: 18, Total: 18},
		"4.0": {Correct: 12, Total: 21},
		"5.0": {Correct: 10, Total: 10},
	}

	got := Score(tallies, DefaultBlueprint())
	if got.Scaled != 830 {
		t.Fatalf("expected scaled score 830, got %d (weighted %.6f)", got.Scaled, got.Weighted)
	}
	if !got.IsPass {
		t.Fatalf("expected 830 to pass at 750")
	}
}

func TestScoreAllCorrectReachesMaxScore(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		n := 1 + rng.Intn(8)
		raw := make([]float64, n)
		sum := 0.0
		for j := range raw {
			raw[j] = rng.Float64() + 0.01
			sum += raw[j]
		}
		domains := make([]Domain, n)
		tallies := Tallies{}
		for j := range raw {
			id := string(rune('a' + j))
			domains[j] = Domain{ID: id, Weight: raw[j] / sum}
			total := 1 + rng.Intn(40)
			tallies[id] = DomainTally{Correct: total, Total: total}
		}

		bp, err := NewBlueprint(BlueprintConfig{Domains: domains, MaxScore: 1000, PassingScore: 750, TotalQuestions: 100})
		if err != nil {
			t.Fatalf("blueprint %d: %v", i, err)
		}
		if got := Score(tallies, bp); got.Scaled != 1000 || !got.IsPass {
			t.Fatalf("case %d: expected 1000/pass, got %d/%v", i, got.Scaled, got.IsPass)
		}
	}
}

func TestScoreAllWrongIsZero(t *testing.T) {
	tallies := Tallies{
		"1.0": {Correct: 0, Total: 31},
		"2.0": {Correct: 0, Total: 20},
		"3.0": {Correct: 0, Total: 18},
		"4.0": {Correct: 0, Total: 21},
		"5.0": {Correct: 0, Total: 10},
	}
	got := Score(tallies, DefaultBlueprint())
	if got.Scaled != 0 || got.IsPass {
		t.Fatalf("expected 0/fail, got %d/%v", got.Scaled, got.IsPass)
	}
}

func TestScoreEmptyDomainLosesWeight(t *testing.T) {
	// Domain 1.0 has nothing graded, so its 0.31 is simply lost.
	tallies := Tallies{
		"2.0": {Correct: 20, Total: 20},
		"3.0": {Correct: 18, Total: 18},
		"4.0": {Correct: 21, Total: 21},
		"5.0": {Correct: 10, Total: 10},
	}
	got := Score(tallies, DefaultBlueprint())
	if got.Scaled != 690 {
		t.Fatalf("expected 690 without renormalization, got %d", got.Scaled)
	}
	if got.IsPass {
		t.Fatalf("690 must not pass")
	}
}

func TestScoreIgnoresUnknownDomainsAndIsRepeatable(t *testing.T) {
	tallies := Tallies{
		"1.0": {Correct: 10, Total: 31},
		"9.9": {Correct: 5, Total: 5},
	}
	first := Score(tallies, DefaultBlueprint())
	second := Score(tallies, DefaultBlueprint())
	if first != second {
		t.Fatalf("score not repeatable: %+v vs %+v", first, second)
	}
	if first.Scaled != 100 {
		t.Fatalf("expected 100, got %d", first.Scaled)
	}
}

func TestScaledScoreRoundsHalfAwayFromZero(t *testing.T) {
	domains := []Domain{{ID: "x", Weight: 1}}
	// 1/8 of 20 = 2.5 -> 3
	got, _ := ScaledScore(Tallies{"x": {Correct: 1, Total: 8}}, domains, 20)
	if got != 3 {
		t.Fatalf("expected 2.5 to round to 3, got %d", got)
	}
}

func TestGradeAnswersOrderIndependent(t *testing.T) {
	keys := map[string]question.Keyed{
		"q1": {ID: "q1", Domain: "1.0", CorrectAnswers: []string{"A"}},
		"q2": {ID: "q2", Domain: "1.0", CorrectAnswers: []string{"B", "C"}},
		"q3": {ID: "q3", Domain: "2.0", CorrectAnswers: []string{"D"}},
	}
	answers := []SubmittedAnswer{
		{QuestionID: "q1", UserAnswers: []string{"A"}},
		{QuestionID: "q2", UserAnswers: []string{"C", "B"}, IsFlagged: true},
		{QuestionID: "q3", UserAnswers: []string{"A"}},
		{QuestionID: "ghost", UserAnswers: []string{"A"}},
	}
	reversed := make([]SubmittedAnswer, len(answers))
	for i := range answers {
		reversed[len(answers)-1-i] = answers[i]
	}

	a := gradeAnswers(answers, keys)
	b := gradeAnswers(reversed, keys)

	if a.CorrectCount != 2 || b.CorrectCount != 2 {
		t.Fatalf("expected 2 correct, got %d and %d", a.CorrectCount, b.CorrectCount)
	}
	if a.Tallies["1.0"] != (DomainTally{Correct: 2, Total: 2}) || a.Tallies["2.0"] != (DomainTally{Correct: 0, Total: 1}) {
		t.Fatalf("unexpected tallies: %+v", a.Tallies)
	}
	if len(a.Tallies) != 2 {
		t.Fatalf("unknown question must not create a domain tally: %+v", a.Tallies)
	}
	if Score(a.Tallies, DefaultBlueprint()) != Score(b.Tallies, DefaultBlueprint()) {
		t.Fatalf("score depends on answer order")
	}
	if len(a.Answers) != 4 {
		t.Fatalf("expected every answer recorded, got %d", len(a.Answers))
	}
	last := a.Answers[3]
	if last.QuestionID != "ghost" || last.IsCorrect {
		t.Fatalf("unknown question should be recorded incorrect, got %+v", last)
	}
	if !a.Answers[1].IsFlagged {
		t.Fatalf("flag should be carried through")
	}
}
