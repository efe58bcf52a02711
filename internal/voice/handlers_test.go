package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicetasks-backend/internal/executor"
	"voicetasks-backend/internal/intent"
	"voicetasks-backend/internal/tasks"
)

func newTestHandler() (*Handler, *tasks.MemoryStore) {
	store := tasks.NewMemoryStore()
	exec := executor.New(store, nil, executor.DefaultOptions())
	return &Handler{
		Parser: intent.NewService(nil, time.Second), // keyword fallback only
		Exec:   exec,
		Store:  store,
	}, store
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestProcessTextAddsTask(t *testing.T) {
	h, store := newTestHandler()

	rec := postJSON(t, h.ProcessText, `{"text":"add buy milk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result executor.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Message == "" || result.Action.Confidence == 0 {
		t.Errorf("response must carry a message and confidence: %+v", result)
	}

	list, _ := store.List(context.Background(), true)
	if len(list) != 1 || list[0].Description != "buy milk" {
		t.Errorf("store state = %+v", list)
	}
}

func TestProcessTextUnparsableStillAnswers(t *testing.T) {
	h, _ := newTestHandler()

	rec := postJSON(t, h.ProcessText, `{"text":"bananas are yellow"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var result executor.Result
	json.NewDecoder(rec.Body).Decode(&result)
	if result.Message == "" {
		t.Error("even an unintelligible command must yield a message")
	}
	if result.Action.Kind != intent.KindUnclear {
		t.Errorf("kind = %q, want unclear", result.Action.Kind)
	}
}

func TestProcessTextValidation(t *testing.T) {
	h, _ := newTestHandler()

	if rec := postJSON(t, h.ProcessText, `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid json: status = %d", rec.Code)
	}
	if rec := postJSON(t, h.ProcessText, `{"text":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d", rec.Code)
	}
}

func TestProcessCommandWithoutTranscriber(t *testing.T) {
	h, _ := newTestHandler()

	rec := postJSON(t, h.ProcessCommand, `{"audio_data":"Zm9v"}`)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

type staticTranscriber struct{ text string }

func (s staticTranscriber) Transcribe(context.Context, string) (string, error) {
	return s.text, nil
}

func TestProcessCommandPipeline(t *testing.T) {
	h, store := newTestHandler()
	h.STT = staticTranscriber{text: "add walk the dog"}

	rec := postJSON(t, h.ProcessCommand, `{"audio_data":"Zm9v"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	list, _ := store.List(context.Background(), true)
	if len(list) != 1 || list[0].Description != "walk the dog" {
		t.Errorf("store state = %+v", list)
	}
}

// deadlineStore records whether List was called with a deadline.
type deadlineStore struct {
	*tasks.MemoryStore
	sawDeadline bool
}

func (s *deadlineStore) List(ctx context.Context, includeCompleted bool) ([]tasks.Task, error) {
	_, s.sawDeadline = ctx.Deadline()
	return s.MemoryStore.List(ctx, includeCompleted)
}

func TestProcessTextBoundsContextFetch(t *testing.T) {
	store := &deadlineStore{MemoryStore: tasks.NewMemoryStore()}
	h := &Handler{
		Parser:       intent.NewService(nil, time.Second),
		Exec:         executor.New(tasks.NewMemoryStore(), nil, executor.DefaultOptions()),
		Store:        store,
		StoreTimeout: 100 * time.Millisecond,
	}

	rec := postJSON(t, h.ProcessText, `{"text":"add buy milk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !store.sawDeadline {
		t.Error("task-context fetch must run under a deadline")
	}
}

func TestTextToSpeechWithoutSynthesizer(t *testing.T) {
	h, _ := newTestHandler()

	rec := postJSON(t, h.TextToSpeech, `{"text":"hello"}`)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}
