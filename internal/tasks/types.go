package tasks

import "time"

// Defaults applied when a create request leaves a field unset.
const (
	DefaultPriority = 3
	DefaultCategory = "general"

	MinPriority = 1
	MaxPriority = 5
)

type Task struct {
	ID          int        `json:"id"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    int        `json:"priority"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RemindAt    *time.Time `json:"remind_at,omitempty"`
	Recurring   bool       `json:"recurring"`
}

// Update describes a partial task update. Nil pointer fields are left
// untouched. ClearRemindAt distinguishes "clear the reminder" from
// "don't touch the reminder", which a nil RemindAt alone cannot express.
type Update struct {
	Description   *string
	Completed     *bool
	Priority      *int
	Category      *string
	RemindAt      *time.Time
	ClearRemindAt bool
	Recurring     *bool
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return u.Description == nil &&
		u.Completed == nil &&
		u.Priority == nil &&
		u.Category == nil &&
		u.RemindAt == nil &&
		!u.ClearRemindAt &&
		u.Recurring == nil
}

// ClampPriority forces p into the valid 1-5 range.
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
