package services

import (
	"context"
	"iter"
	"strings"

	"github/itish2003/ainotes/models"

	"google.golang.org/genai"
)

// GeminiEngine streams completions from the Gemini API.
type GeminiEngine struct {
	client *genai.Client
	params CompletionParams
}

func NewGeminiEngine(client *genai.Client, params CompletionParams) *GeminiEngine {
	return &GeminiEngine{client: client, params: params}
}

func (g *GeminiEngine) StreamChat(ctx context.Context, messages []models.ChatMessage) iter.Seq2[string, error] {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, m.Content)
		case models.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.params.Temperature)),
		TopP:            genai.Ptr(float32(g.params.TopP)),
		MaxOutputTokens: int32(g.params.MaxTokens),
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	return func(yield func(string, error) bool) {
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.params.Model, contents, config) {
			if err != nil {
				yield("", err)
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}
