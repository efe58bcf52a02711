package intent

import (
	"context"
	"log"
	"time"

	"voicetasks-backend/internal/tasks"
)

// Service is the parser the command pipeline uses. It prefers the model
// and degrades to keyword matching on any parse failure, so Parse never
// returns an error to the pipeline.
type Service struct {
	model    Parser // nil when no API key is configured
	fallback FallbackParser
	timeout  time.Duration
}

func NewService(model Parser, timeout time.Duration) *Service {
	return &Service{model: model, timeout: timeout}
}

func (s *Service) Parse(ctx context.Context, utterance string, current []tasks.Task) (Action, error) {
	if s.model == nil {
		log.Println("intent: no model configured, using keyword matching")
		return s.fallback.Parse(ctx, utterance, current)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	action, err := s.model.Parse(ctx, utterance, current)
	if err != nil {
		log.Println("intent: model parse failed, falling back to keyword matching:", err)
		return s.fallback.Parse(ctx, utterance, current)
	}
	return action, nil
}
