// Package resolver maps a free-text task reference ("the groceries one")
// to a concrete task. It is pure: same reference and task set always
// produce the same resolution.
package resolver

import (
	"sort"
	"strings"

	"voicetasks-backend/internal/tasks"
)

type Kind int

const (
	// NotFound means no task cleared the match threshold.
	NotFound Kind = iota
	// Unique means exactly one task cleared the threshold by the
	// disambiguation margin over the runner-up.
	Unique
	// Ambiguous means several tasks cleared the threshold within the
	// margin of each other.
	Ambiguous
)

type Candidate struct {
	Task  tasks.Task
	Score float64
}

type Resolution struct {
	Kind       Kind
	Task       tasks.Task  // set when Kind == Unique
	Candidates []Candidate // set when Kind == Ambiguous, best first, max 5
}

type Options struct {
	// MatchThreshold is the minimum similarity score for a task to be
	// considered a candidate at all.
	MatchThreshold float64
	// Margin is how far the best score must clear the runner-up for
	// the match to count as unique.
	Margin float64
	// MaxCandidates bounds the ambiguity list.
	MaxCandidates int
}

func DefaultOptions() Options {
	return Options{
		MatchThreshold: 0.55,
		Margin:         0.1,
		MaxCandidates:  5,
	}
}

// Resolve scores every task against the reference and classifies the
// outcome. An empty reference or task set is always NotFound.
func Resolve(reference string, ts []tasks.Task, opts Options) Resolution {
	ref := normalize(reference)
	if ref == "" || len(ts) == 0 {
		return Resolution{Kind: NotFound}
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultOptions().MaxCandidates
	}

	candidates := make([]Candidate, 0, len(ts))
	for _, t := range ts {
		score := Similarity(ref, normalize(t.Description))
		if score > opts.MatchThreshold {
			candidates = append(candidates, Candidate{Task: t, Score: score})
		}
	}
	if len(candidates) == 0 {
		return Resolution{Kind: NotFound}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		// ties go to the most recently modified task
		ti, tj := candidates[i].Task, candidates[j].Task
		if !ti.UpdatedAt.Equal(tj.UpdatedAt) {
			return ti.UpdatedAt.After(tj.UpdatedAt)
		}
		return ti.ID < tj.ID
	})

	if len(candidates) == 1 || candidates[0].Score-candidates[1].Score >= opts.Margin {
		return Resolution{Kind: Unique, Task: candidates[0].Task}
	}

	// everything within the margin of the best is a live candidate
	within := candidates[:1]
	for _, c := range candidates[1:] {
		if candidates[0].Score-c.Score < opts.Margin {
			within = append(within, c)
		}
	}
	if len(within) > opts.MaxCandidates {
		within = within[:opts.MaxCandidates]
	}
	return Resolution{Kind: Ambiguous, Candidates: within}
}

// normalize case-folds, trims, and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// Similarity blends normalized Levenshtein similarity and Jaro-Winkler,
// weighted up by token containment (how much of the reference appears in
// the description). Both inputs must already be normalized. Result is
// in [0,1].
func Similarity(ref, desc string) float64 {
	if ref == "" || desc == "" {
		return 0
	}
	if ref == desc {
		return 1
	}

	lev := levenshteinSimilarity(ref, desc)
	jw := jaroWinkler(ref, desc)
	base := (lev + jw) / 2

	containment := tokenContainment(ref, desc)
	score := base + (1-base)*0.45*containment
	if score > 1 {
		score = 1
	}
	return score
}

// tokenContainment is the fraction of reference tokens that occur in the
// description token set. This keeps short references like "groceries"
// viable against longer descriptions like "buy groceries tomorrow".
func tokenContainment(ref, desc string) float64 {
	refTokens := strings.Fields(ref)
	if len(refTokens) == 0 {
		return 0
	}
	descSet := make(map[string]struct{})
	for _, tok := range strings.Fields(desc) {
		descSet[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range refTokens {
		if _, ok := descSet[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(refTokens))
}

func levenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func jaroWinkler(a, b string) float64 {
	j := jaro([]rune(a), []rune(b))
	if j == 0 {
		return 0
	}

	// common prefix, capped at 4 runes per the standard definition
	prefix := 0
	ra, rb := []rune(a), []rune(b)
	for prefix < len(ra) && prefix < len(rb) && prefix < 4 && ra[prefix] == rb[prefix] {
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	window := len(a)
	if len(b) > window {
		window = len(b)
	}
	window = window/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0
	for i := range a {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > len(b) {
			hi = len(b)
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	j := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	return (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3
}
