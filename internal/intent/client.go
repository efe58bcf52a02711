package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voicetasks-backend/internal/tasks"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// Parser turns an utterance into a structured action candidate. A
// returned error is a parse failure; callers treat it as an unclear
// action with zero confidence.
type Parser interface {
	Parse(ctx context.Context, utterance string, current []tasks.Task) (Action, error)
}

// ClaudeClient asks the Anthropic messages API to interpret utterances.
type ClaudeClient struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return &ClaudeClient{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: defaultBaseURL,
		HTTP:    http.DefaultClient,
	}
}

func (c *ClaudeClient) Parse(ctx context.Context, utterance string, current []tasks.Task) (Action, error) {
	reqBody := map[string]interface{}{
		"model":      c.Model,
		"max_tokens": 1024,
		"system":     buildSystemPrompt(current),
		"messages": []map[string]interface{}{
			{"role": "user", "content": utterance},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Action{}, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/v1/messages",
		bytes.NewBuffer(payload),
	)
	if err != nil {
		return Action{}, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return Action{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Action{}, err
	}
	if res.StatusCode != http.StatusOK {
		return Action{}, fmt.Errorf("anthropic api status %d: %s", res.StatusCode, body)
	}

	var msg struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return Action{}, err
	}

	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		action, err := decodeAction(block.Text)
		if err != nil {
			return Action{}, err
		}
		return action, nil
	}
	return Action{}, fmt.Errorf("model did not return text")
}

// decodeAction parses the model's JSON answer, tolerating prose around
// the object, and validates the closed action kind.
func decodeAction(text string) (Action, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Action{}, fmt.Errorf("no JSON object in model output")
	}

	var action Action
	if err := json.Unmarshal([]byte(text[start:end+1]), &action); err != nil {
		return Action{}, fmt.Errorf("malformed model output: %w", err)
	}
	if !action.Kind.Valid() {
		return Action{}, fmt.Errorf("unknown action kind %q", action.Kind)
	}

	if action.Confidence < 0 {
		action.Confidence = 0
	}
	if action.Confidence > 1 {
		action.Confidence = 1
	}
	return action, nil
}
