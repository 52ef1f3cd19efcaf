package services

import (
	"context"
	"iter"

	"github/itish2003/ainotes/models"

	"github.com/sirupsen/logrus"
)

// CompletionEngine streams a chat completion as text deltas. Breaking out
// of the returned sequence releases the upstream call.
type CompletionEngine interface {
	StreamChat(ctx context.Context, messages []models.ChatMessage) iter.Seq2[string, error]
}

// CompletionParams are the sampling settings sent with every request.
type CompletionParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// DefaultCompletionParams match the hosted Groq deployment.
var DefaultCompletionParams = CompletionParams{
	Model:       "llama-3.3-70b-versatile",
	Temperature: 0.7,
	MaxTokens:   2048,
	TopP:        1,
}

// CompletionStreamer turns a system prompt and a conversation window into a
// lazy sequence of raw UTF-8 fragments.
type CompletionStreamer struct {
	engine CompletionEngine
	log    *logrus.Entry
}

func NewCompletionStreamer(engine CompletionEngine) *CompletionStreamer {
	return &CompletionStreamer{
		engine: engine,
		log:    logrus.WithField("component", "streamer"),
	}
}

// Stream starts nothing until ranged over. Fragments arrive in generation
// order; an upstream failure ends the sequence with ErrStreamFailed.
func (s *CompletionStreamer) Stream(ctx context.Context, systemPrompt string, window []models.ChatMessage) iter.Seq2[[]byte, error] {
	messages := make([]models.ChatMessage, 0, len(window)+1)
	messages = append(messages, models.ChatMessage{
		Role:    models.RoleSystem,
		Content: systemPrompt,
		Name:    "system",
	})
	messages = append(messages, window...)

	return func(yield func([]byte, error) bool) {
		for text, err := range s.engine.StreamChat(ctx, messages) {
			if err != nil {
				s.log.WithError(err).Error("STREAMER: Upstream completion failed")
				yield(nil, wrap(ErrStreamFailed, err))
				return
			}
			if text == "" {
				continue
			}
			if !yield([]byte(text), nil) {
				return
			}
		}
	}
}
