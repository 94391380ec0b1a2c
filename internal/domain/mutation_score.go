package domain

import m "gooze.dev/pkg/jgooze/internal/model"

// Tally counts results by status.
type Tally map[m.TestStatus]int

// Add counts one result.
func (t Tally) Add(status m.TestStatus) {
	t[status]++
}

// Scored returns the number of results the score is computed over. Mutants
// that could not be built, were skipped or errored say nothing about the
// tests; uncovered ones count as missed.
func (t Tally) Scored() int {
	return t[m.Killed] + t[m.Timeout] + t[m.Survived] + t[m.Uncovered]
}

// Score returns detected over scored mutants, 1 when nothing was scored.
func (t Tally) Score() float64 {
	total := t.Scored()
	if total == 0 {
		return 1
	}

	return float64(t[m.Killed]+t[m.Timeout]) / float64(total)
}

func tallyOf(results []m.Result) Tally {
	tally := Tally{}
	for _, r := range results {
		tally.Add(r.Status)
	}

	return tally
}
