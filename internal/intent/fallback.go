package intent

import (
	"context"
	"fmt"
	"strings"

	"voicetasks-backend/internal/tasks"
)

// FallbackParser classifies utterances with keyword rules. It never
// fails, which makes it the safety net when no model is configured or
// the model call errors out.
type FallbackParser struct{}

func (FallbackParser) Parse(_ context.Context, utterance string, _ []tasks.Task) (Action, error) {
	lower := strings.ToLower(utterance)

	switch {
	case containsAny(lower, "add", "create", "new"):
		filler := map[string]bool{"add": true, "create": true, "new": true, "task": true, "a": true, "to": true, "please": true}
		var kept []string
		for _, word := range strings.Fields(utterance) {
			if filler[strings.ToLower(strings.Trim(word, ".,!?"))] {
				continue
			}
			kept = append(kept, word)
		}
		desc := strings.Join(kept, " ")
		return Action{
			Kind:            KindAdd,
			TaskDescription: desc,
			Confidence:      0.7,
			Message:         fmt.Sprintf("I've added '%s' to your tasks.", desc),
		}, nil

	case containsAny(lower, "done", "finished", "complete", "completed"):
		return Action{
			Kind:           KindComplete,
			TaskIdentifier: utterance,
			Confidence:     0.6,
			Message:        "I'll mark that task as complete.",
		}, nil

	case containsAny(lower, "list", "show", "what", "tasks"):
		return Action{
			Kind:       KindList,
			Confidence: 0.8,
			Message:    "Here are your current tasks.",
		}, nil

	default:
		return Unclear(
			"I didn't understand that. Could you please try again?",
			"Please tell me if you want to add, complete, or list tasks.",
		), nil
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
