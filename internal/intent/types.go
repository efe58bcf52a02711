package intent

// Kind is the closed set of action kinds the parser may produce.
// The wire names match the original voice-command protocol.
type Kind string

const (
	KindAdd            Kind = "add_task"
	KindComplete       Kind = "complete_task"
	KindList           Kind = "list_tasks"
	KindModify         Kind = "modify_task"
	KindClearCompleted Kind = "clear_completed"
	KindUpdateReminder Kind = "update_reminder"
	KindUnclear        Kind = "unclear"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAdd, KindComplete, KindList, KindModify,
		KindClearCompleted, KindUpdateReminder, KindUnclear:
		return true
	}
	return false
}

// Action is the structured interpretation of one utterance. The parser
// is an untrusted oracle: every field is re-validated by the executor.
type Action struct {
	Kind Kind `json:"action"`

	// TaskDescription is the content of a new task (add).
	TaskDescription string `json:"task_description,omitempty"`
	// TaskIdentifier is a free-text reference to an existing task
	// (complete, modify, update_reminder).
	TaskIdentifier string `json:"task_identifier,omitempty"`
	// NewDescription replaces a task's description (modify).
	NewDescription string `json:"new_description,omitempty"`
	// ReminderSeconds is the reminder interval in seconds; zero or
	// absent clears the reminder.
	ReminderSeconds *int `json:"reminder_interval,omitempty"`
	// Priority overrides the 1-5 priority.
	Priority *int `json:"priority_level,omitempty"`
	// Category is a suggested free-text category label.
	Category string `json:"suggested_category,omitempty"`
	// Recurring marks the task as repeating (add).
	Recurring bool `json:"recurring,omitempty"`

	// Confidence is the parser's self-reported certainty in [0,1].
	Confidence float64 `json:"confidence"`
	// Message is the conversational response to speak back.
	Message string `json:"response_message"`
	// Clarification carries the follow-up question when the intent
	// was unclear or ambiguous.
	Clarification string `json:"clarification_needed,omitempty"`
}

// Unclear builds the action the engine falls back to when parsing
// fails outright.
func Unclear(message, clarification string) Action {
	return Action{
		Kind:          KindUnclear,
		Confidence:    0,
		Message:       message,
		Clarification: clarification,
	}
}
