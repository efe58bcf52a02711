// Package voice wires the command pipeline: utterance -> intent parse
// -> execute -> conversational response. Speech-to-text and
// text-to-speech are external collaborators behind interfaces; this
// package never touches audio itself.
package voice

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"voicetasks-backend/internal/executor"
	"voicetasks-backend/internal/intent"
	"voicetasks-backend/internal/tasks"
)

// Transcriber converts base64 audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64 string) (string, error)
}

// Synthesizer converts text into base64 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// DefaultStoreTimeout bounds the task-context fetch when no timeout is
// configured on the handler.
const DefaultStoreTimeout = 5 * time.Second

type Handler struct {
	Parser intent.Parser
	Exec   *executor.Executor
	Store  tasks.Store

	// StoreTimeout bounds the task-context fetch that feeds the
	// parser; zero means DefaultStoreTimeout.
	StoreTimeout time.Duration

	// STT and TTS are optional; endpoints needing them answer 501
	// when they are not wired.
	STT Transcriber
	TTS Synthesizer
}

// ProcessText handles POST /api/voice/process-text.
func (h *Handler) ProcessText(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	result := h.run(r.Context(), body.Text)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
}

// ProcessCommand handles POST /api/voice/process-command: base64 audio
// through the full pipeline.
func (h *Handler) ProcessCommand(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.STT == nil {
		http.Error(w, "speech-to-text is not configured", http.StatusNotImplemented)
		return
	}

	var body struct {
		AudioData string `json:"audio_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.AudioData == "" {
		http.Error(w, "audio_data is required", http.StatusBadRequest)
		return
	}

	text, err := h.STT.Transcribe(r.Context(), body.AudioData)
	if err != nil || text == "" {
		log.Println("voice: transcription failed:", err)
		http.Error(w, "could not transcribe audio", http.StatusBadRequest)
		return
	}
	log.Println("voice: transcribed:", text)

	result := h.run(r.Context(), text)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
}

// TextToSpeech handles POST /api/voice/text-to-speech.
func (h *Handler) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.TTS == nil {
		http.Error(w, "text-to-speech is not configured", http.StatusNotImplemented)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	audio, err := h.TTS.Synthesize(r.Context(), body.Text)
	resp := struct {
		AudioData string `json:"audio_data"`
		Success   bool   `json:"success"`
	}{AudioData: audio, Success: err == nil}
	if err != nil {
		log.Println("voice: synthesis failed:", err)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
}

// run is the core pipeline: fetch context, parse, execute. The parser
// service recovers its own failures, so every utterance yields exactly
// one well-formed result.
func (h *Handler) run(ctx context.Context, text string) executor.Result {
	timeout := h.StoreTimeout
	if timeout == 0 {
		timeout = DefaultStoreTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	current, err := h.Store.List(lctx, false)
	cancel()
	if err != nil {
		log.Println("voice: could not load task context for parser:", err)
		current = nil
	}

	action, err := h.Parser.Parse(ctx, text, current)
	if err != nil {
		action = intent.Unclear(
			"I didn't catch that. Could you try again?",
			"Please tell me if you want to add, complete, or list tasks.",
		)
	}

	return h.Exec.Execute(ctx, action)
}
