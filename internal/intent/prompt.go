package intent

import (
	"encoding/json"
	"strings"

	"voicetasks-backend/internal/tasks"
)

const systemPromptHeader = `You are a task management assistant. Interpret the user's command and return structured data.

Return ONLY one JSON object with these fields:
{
"action": "add_task" | "complete_task" | "list_tasks" | "modify_task" | "clear_completed" | "update_reminder" | "unclear",
"task_description": string (add_task only),
"task_identifier": string (keywords identifying an existing task),
"new_description": string (modify_task only),
"reminder_interval": number (seconds, 0 clears the reminder),
"priority_level": number (1-5),
"suggested_category": string,
"recurring": boolean,
"confidence": number (0.0 to 1.0),
"response_message": string,
"clarification_needed": string (only when action is unclear)
}

Guidelines:
- For add_task: extract the exact task description
- For complete_task: match against existing tasks using keywords from the user input
- For modify_task: identify which task and what changes
- Set confidence based on how clear the intent is (0.0 to 1.0)
- Generate a natural, conversational response
- If unclear, set action to "unclear" and fill clarification_needed
- If user says things like "I'm done with X" or "finished X", treat as complete_task
- Be helpful and encouraging in your responses

Examples:
- "Add buy milk" -> add_task with task_description="buy milk"
- "I finished the groceries" -> complete_task with task_identifier="groceries"
- "What's on my list?" -> list_tasks
- "Change the meeting to 3 PM" -> modify_task with task_identifier="meeting" and new_description="meeting at 3 PM"
- "Remind me about the dentist in an hour" -> update_reminder with task_identifier="dentist" and reminder_interval=3600
`

// buildSystemPrompt embeds the current task list so the model can match
// references against what actually exists.
func buildSystemPrompt(current []tasks.Task) string {
	type taskContext struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
		Priority    int    `json:"priority"`
		Category    string `json:"category"`
	}

	ctx := make([]taskContext, 0, len(current))
	for _, t := range current {
		ctx = append(ctx, taskContext{
			ID:          t.ID,
			Description: t.Description,
			Priority:    t.Priority,
			Category:    t.Category,
		})
	}
	listJSON, _ := json.MarshalIndent(ctx, "", "  ")

	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\nCurrent tasks:\n")
	b.Write(listJSON)
	b.WriteString("\n")
	return b.String()
}
