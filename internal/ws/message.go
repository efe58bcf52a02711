// Package ws is the synchronization channel: a hub that fans task
// change events out to every live websocket connection, and a client
// that keeps a local task view consistent across disconnects.
package ws

import "voicetasks-backend/internal/tasks"

// Wire message types. tasks_update and task_update flow server to
// client; ping/pong flow both ways; request_resync flows client to
// server (get_tasks is the legacy alias for it).
const (
	TypeTasksUpdate   = "tasks_update"
	TypeTaskUpdate    = "task_update"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeRequestResync = "request_resync"
	TypeGetTasks      = "get_tasks"
)

// Message is the wire envelope. Data carries one task record for
// task_update; Tasks carries the full list for tasks_update.
type Message struct {
	Type  string       `json:"type"`
	Data  *tasks.Task  `json:"data,omitempty"`
	Tasks []tasks.Task `json:"tasks,omitempty"`
}

// TaskUpdate wraps a single-task upsert event.
func TaskUpdate(t tasks.Task) Message {
	return Message{Type: TypeTaskUpdate, Data: &t}
}

// TasksUpdate wraps a full-list snapshot event.
func TasksUpdate(ts []tasks.Task) Message {
	if ts == nil {
		ts = []tasks.Task{}
	}
	return Message{Type: TypeTasksUpdate, Tasks: ts}
}

// MergeUpsert applies a single-task upsert to a local view: replace in
// place when the id exists (preserving list position), append
// otherwise.
func MergeUpsert(view []tasks.Task, t tasks.Task) []tasks.Task {
	for i := range view {
		if view[i].ID == t.ID {
			view[i] = t
			return view
		}
	}
	return append(view, t)
}
