package exam

import "certprep/internal/question"

// selectQuestions draws each blueprint domain's quota at random, tops the
// set up to the blueprint total from whatever is left in the pool, and
// shuffles the result. A short pool yields a shorter test rather than an
// error.
func selectQuestions(pool []question.Public, bp Blueprint, shuffle func(n int, swap func(i, j int))) []question.Public {
	if len(pool) == 0 {
		return nil
	}

	byDomain := make(map[string][]question.Public)
	for _, q := range pool {
		byDomain[q.Domain] = append(byDomain[q.Domain], q)
	}

	total := bp.TotalQuestions()
	picked := make(map[string]struct{}, total)
	out := make([]question.Public, 0, total)

	for _, d := range bp.domains {
		candidates := append([]question.Public(nil), byDomain[d.ID]...)
		shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		n := d.QuestionCount
		if n > len(candidates) {
			n = len(candidates)
		}
		if room := total - len(out); n > room {
			n = room
		}
		for _, q := range candidates[:n] {
			picked[q.ID] = struct{}{}
			out = append(out, q)
		}
	}

	if len(out) < total {
		rest := make([]question.Public, 0, len(pool)-len(out))
		for _, q := range pool {
			if _, ok := picked[q.ID]; !ok {
				rest = append(rest, q)
			}
		}
		shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		for _, q := range rest {
			if len(out) >= total {
				break
			}
			picked[q.ID] = struct{}{}
			out = append(out, q)
		}
	}

	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
