package resolver

import (
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"voicetasks-backend/internal/tasks"
)

func genWords(t *rapid.T, label string, minWords, maxWords int) string {
	vocab := []string{
		"buy", "milk", "eggs", "call", "mom", "finish", "report",
		"walk", "dog", "groceries", "meeting", "dentist", "gift",
	}
	n := rapid.IntRange(minWords, maxWords).Draw(t, label+"Len")
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += " "
		}
		out += vocab[rapid.IntRange(0, len(vocab)-1).Draw(t, label+"Word")]
	}
	return out
}

func genTaskSet(t *rapid.T) []tasks.Task {
	n := rapid.IntRange(0, 12).Draw(t, "nTasks")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]tasks.Task, n)
	for i := range ts {
		ts[i] = tasks.Task{
			ID:          i + 1,
			Description: genWords(t, "desc", 1, 4),
			UpdatedAt:   base.Add(time.Duration(rapid.IntRange(0, 1000).Draw(t, "updOffset")) * time.Second),
		}
	}
	return ts
}

// Repeated calls with identical inputs must return identical results.
func TestResolveDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ref := genWords(t, "ref", 0, 3)
		ts := genTaskSet(t)
		opts := DefaultOptions()

		first := Resolve(ref, ts, opts)
		second := Resolve(ref, ts, opts)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("resolver not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
		}
	})
}

func TestResolveInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ref := genWords(t, "ref", 0, 3)
		ts := genTaskSet(t)
		opts := DefaultOptions()

		res := Resolve(ref, ts, opts)
		switch res.Kind {
		case Ambiguous:
			if len(res.Candidates) < 2 {
				t.Fatalf("ambiguous with %d candidates", len(res.Candidates))
			}
			if len(res.Candidates) > opts.MaxCandidates {
				t.Fatalf("candidate list exceeds cap: %d", len(res.Candidates))
			}
			for i, c := range res.Candidates {
				if c.Score <= opts.MatchThreshold {
					t.Fatalf("candidate %d below threshold: %v", i, c.Score)
				}
				if i > 0 && c.Score > res.Candidates[i-1].Score {
					t.Fatalf("candidates not sorted by score")
				}
			}
		case Unique:
			found := false
			for _, task := range ts {
				if task.ID == res.Task.ID {
					found = true
				}
			}
			if !found {
				t.Fatalf("unique resolution returned a task not in the set")
			}
		case NotFound:
			if res.Task.ID != 0 || res.Candidates != nil {
				t.Fatalf("NotFound carries payload: %+v", res)
			}
		}
	})
}

// Similarity must stay within [0,1] for arbitrary normalized inputs.
func TestSimilarityBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genWords(t, "a", 1, 5)
		b := genWords(t, "b", 1, 5)
		s := Similarity(a, b)
		if s < 0 || s > 1 {
			t.Fatalf("Similarity(%q, %q) = %v out of range", a, b, s)
		}
		if Similarity(a, b) != Similarity(a, b) {
			t.Fatalf("similarity not deterministic for (%q, %q)", a, b)
		}
	})
}
