package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/rs/cors"

	"voicetasks-backend/internal/config"
	"voicetasks-backend/internal/db"
	"voicetasks-backend/internal/executor"
	"voicetasks-backend/internal/intent"
	"voicetasks-backend/internal/resolver"
	"voicetasks-backend/internal/tasks"
	"voicetasks-backend/internal/voice"
	"voicetasks-backend/internal/ws"
)

func main() {
	cfg := config.Load()

	// ----- STORE -----
	var store tasks.Store
	if cfg.HasDatabase() {
		database, err := db.Connect(cfg.ConnString())
		if err != nil {
			log.Fatal("❌ Failed to connect DB:", err)
		}
		defer database.Close()

		pg := tasks.NewPostgresStore(database)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatal("❌ Failed to create schema:", err)
		}
		store = pg
		log.Println("✅ Connected to PostgreSQL!")
	} else {
		store = tasks.NewMemoryStore()
		log.Println("⚠️  DB_HOST not set, using in-memory task store")
	}

	// ----- INTENT PARSER -----
	var model intent.Parser
	if cfg.AnthropicKey != "" {
		model = intent.NewClaudeClient(cfg.AnthropicKey, cfg.AnthropicModel)
		log.Println("✅ Claude intent parser initialized")
	} else {
		log.Println("⚠️  ANTHROPIC_API_KEY not set, commands use keyword matching only")
	}
	parser := intent.NewService(model, cfg.ParserTimeout)

	// ----- SYNC HUB -----
	hub := ws.NewHub(store)
	go hub.Run(context.Background())

	// ----- EXECUTOR -----
	exec := executor.New(store, hub, executor.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		Resolver: resolver.Options{
			MatchThreshold: cfg.MatchThreshold,
			Margin:         cfg.MatchMargin,
			MaxCandidates:  5,
		},
		StoreTimeout: cfg.StoreTimeout,
	})

	voiceHandler := &voice.Handler{
		Parser:       parser,
		Exec:         exec,
		Store:        store,
		StoreTimeout: cfg.StoreTimeout,
	}

	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// ----- TASKS API -----
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getTasks(store, w, r)
		case http.MethodPost:
			postTask(exec, w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// ----- VOICE API -----
	mux.HandleFunc("/api/voice/process-text", methodPost(voiceHandler.ProcessText))
	mux.HandleFunc("/api/voice/process-command", methodPost(voiceHandler.ProcessCommand))
	mux.HandleFunc("/api/voice/text-to-speech", methodPost(voiceHandler.TextToSpeech))

	// ----- SYNC CHANNEL -----
	mux.Handle("/ws", hub.Handler())

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Println("🚀 API server is running on", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func methodPost(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// ----------------------
//     TASK HANDLERS
// ----------------------

func getTasks(store tasks.Store, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	includeCompleted := r.URL.Query().Get("include_completed") == "true"

	list, err := store.List(r.Context(), includeCompleted)
	if err != nil {
		http.Error(w, "db query error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}

	if err := json.NewEncoder(w).Encode(list); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
}

// postTask creates a task directly. It goes through the executor as a
// fully-confident add action so the change is broadcast like any other
// mutation.
func postTask(exec *executor.Executor, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var body struct {
		Description string `json:"description"`
		Priority    *int   `json:"priority"`
		Category    string `json:"category"`
		Recurring   bool   `json:"recurring"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.Description == "" {
		http.Error(w, "description is required", http.StatusBadRequest)
		return
	}

	result := exec.Execute(r.Context(), intent.Action{
		Kind:            intent.KindAdd,
		TaskDescription: body.Description,
		Priority:        body.Priority,
		Category:        body.Category,
		Recurring:       body.Recurring,
		Confidence:      1,
	})
	if !result.Success {
		http.Error(w, result.Message, statusFor(result.Reason))
		return
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
}

// statusFor maps an executor rejection onto an HTTP status.
func statusFor(reason executor.Reason) int {
	switch reason {
	case executor.ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	case executor.ReasonMalformedAction:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
