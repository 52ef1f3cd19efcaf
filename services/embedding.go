package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Embedder turns text into a vector. All notes and queries of one
// deployment must go through the same model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from stored documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// embedQuery uses the query-side embedding when the provider has one.
func embedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if qe, ok := e.(QueryEmbedder); ok {
		return qe.EmbedQuery(ctx, text)
	}
	return e.Embed(ctx, text)
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse carries either the vector or Ollama's error message.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings endpoint.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaEmbedder creates an embedder for the given Ollama server and model.
func NewOllamaEmbedder(httpClient *http.Client, baseURL, model string) *OllamaEmbedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OllamaEmbedder{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
	}
}

func (o *OllamaEmbedder) Model() string { return o.model }

// Embed sends the text to Ollama and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	logrus.WithField("component", "embedder").Debugf("EMBEDDER: Embedding %d chars with Ollama model %s", len(text), o.model)

	payload, err := json.Marshal(ollamaEmbedRequest{
		Model:  o.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to ollama: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ollama response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama returned non-200 status: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ollama response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama: %s", out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("ollama returned an empty embedding"))
	}
	return out.Embedding, nil
}

// RetryingEmbedder retries transient provider failures with exponential
// backoff and reports every final failure as ErrEmbeddingFailed.
type RetryingEmbedder struct {
	next       Embedder
	maxRetries uint64
	dimension  int
	newBackOff func() backoff.BackOff
	log        *logrus.Entry
}

// NewRetryingEmbedder wraps next. A positive dimension rejects vectors of any
// other length.
func NewRetryingEmbedder(next Embedder, maxRetries uint64, dimension int) *RetryingEmbedder {
	return &RetryingEmbedder{
		next:       next,
		maxRetries: maxRetries,
		dimension:  dimension,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
		log: logrus.WithField("component", "embedder"),
	}
}

func (r *RetryingEmbedder) Model() string { return r.next.Model() }

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return r.retry(ctx, func() ([]float32, error) { return r.next.Embed(ctx, text) })
}

// EmbedQuery retries the provider's query-side embedding.
func (r *RetryingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return r.retry(ctx, func() ([]float32, error) { return embedQuery(ctx, r.next, text) })
}

func (r *RetryingEmbedder) retry(ctx context.Context, call func() ([]float32, error)) ([]float32, error) {
	attempt := 0
	op := func() ([]float32, error) {
		attempt++
		vec, err := call()
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			r.log.WithError(err).Warnf("EMBEDDER: attempt %d failed", attempt)
			return nil, err
		}
		if len(vec) == 0 {
			return nil, backoff.Permanent(fmt.Errorf("provider returned an empty embedding"))
		}
		if r.dimension > 0 && len(vec) != r.dimension {
			return nil, backoff.Permanent(fmt.Errorf("embedding dimension %d does not match index dimension %d", len(vec), r.dimension))
		}
		return vec, nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	vec, err := backoff.RetryWithData(op, b)
	if err != nil {
		return nil, wrap(ErrEmbeddingFailed, err)
	}
	return vec, nil
}
