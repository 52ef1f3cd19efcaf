package services

import (
	"context"
	"iter"

	"github/itish2003/ainotes/models"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainEngine streams completions from any langchaingo model. With the
// openai client pointed at Groq it serves the hosted llama models.
type LangchainEngine struct {
	model  llms.Model
	params CompletionParams
}

func NewLangchainEngine(model llms.Model, params CompletionParams) *LangchainEngine {
	return &LangchainEngine{model: model, params: params}
}

// NewOpenAICompatibleModel builds a langchaingo client for an
// OpenAI-compatible chat endpoint such as Groq.
func NewOpenAICompatibleModel(baseURL, apiKey, model string) (*openai.LLM, error) {
	return openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
}

func (e *LangchainEngine) StreamChat(ctx context.Context, messages []models.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		done := make(chan error, 1)

		go func() {
			defer close(chunks)
			_, err := e.model.GenerateContent(ctx, toLangchainMessages(messages),
				llms.WithModel(e.params.Model),
				llms.WithTemperature(e.params.Temperature),
				llms.WithMaxTokens(e.params.MaxTokens),
				llms.WithTopP(e.params.TopP),
				llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
					if len(chunk) == 0 {
						return nil
					}
					// Blocks until the consumer asks for more.
					select {
					case chunks <- string(chunk):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}),
			)
			done <- err
		}()

		for chunk := range chunks {
			if !yield(chunk, nil) {
				cancel()
				for range chunks {
				}
				<-done
				return
			}
		}
		if err := <-done; err != nil {
			yield("", err)
		}
	}
}

func toLangchainMessages(messages []models.ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}
