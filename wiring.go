package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github/itish2003/ainotes/config"
	"github/itish2003/ainotes/services"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

// app holds the wired services and whatever must be closed on shutdown.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	store    *services.GormNoteStore
	index    services.VectorIndex
	embedder services.Embedder
	notes    *services.NoteSynchronizer
	importer *services.NoteImporter
	chat     *services.ChatService

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logrus.WithError(err).Warn("SHUTDOWN: Failed to release a resource")
		}
	}
}

// ready pings the record store for the health endpoint.
func (a *app) ready() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// openStore opens and migrates the record store.
func openStore(cfg *config.Config) (*gorm.DB, *services.GormNoteStore, error) {
	db, err := services.OpenDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	store := services.NewGormNoteStore(db)
	if err := store.Migrate(); err != nil {
		return nil, nil, err
	}
	logrus.Infof("DB: %s database ready", cfg.Database.Driver)
	return db, store, nil
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.db, a.store = db, store
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	httpClient := &http.Client{Timeout: 30 * time.Second}

	gemini := &geminiPool{}
	embedGemini, err := gemini.clientFor(ctx, cfg.Embedding.Provider, cfg.Embedding.APIKey)
	if err != nil {
		return nil, err
	}
	completionGemini, err := gemini.clientFor(ctx, cfg.Completion.Provider, cfg.Completion.APIKey)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg, httpClient, embedGemini)
	if err != nil {
		return nil, err
	}
	a.embedder = services.NewRetryingEmbedder(embedder, cfg.Embedding.MaxRetries, cfg.Vector.Dimension)
	logrus.Infof("EMBEDDING: Using %s model %s", cfg.Embedding.Provider, embedder.Model())

	index, err := a.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	a.index = index

	engine, err := newEngine(cfg, completionGemini)
	if err != nil {
		return nil, err
	}

	if err := services.SetUnidocLicense(cfg.Unidoc.LicenseKey); err != nil {
		logrus.WithError(err).Warn("IMPORTER: PDF import disabled")
	}

	a.notes = services.NewNoteSynchronizer(store, a.index, a.embedder)
	a.importer = services.NewNoteImporter(a.notes, services.DefaultMaxImportChars)
	retriever := services.NewContextRetriever(store, a.index, a.embedder)
	a.chat = services.NewChatService(retriever, services.NewCompletionStreamer(engine), cfg.Chat.Window, cfg.Chat.TopK)

	ok = true
	return a, nil
}

// geminiPool hands out one Gemini client per API key. Embedding and
// completion may be configured with different keys.
type geminiPool struct {
	clients map[string]*genai.Client
}

// clientFor returns nil for providers other than gemini.
func (p *geminiPool) clientFor(ctx context.Context, provider, key string) (*genai.Client, error) {
	if provider != "gemini" {
		return nil, nil
	}
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if p.clients == nil {
		p.clients = make(map[string]*genai.Client)
	}
	p.clients[key] = c
	logrus.Infof("GEMINI: Client created (%d in use)", len(p.clients))
	return c, nil
}

func newEmbedder(cfg *config.Config, httpClient *http.Client, geminiClient *genai.Client) (services.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return services.NewOllamaEmbedder(httpClient, cfg.Embedding.BaseURL, cfg.Embedding.Model), nil
	case "gemini":
		return services.NewGeminiEmbedder(geminiClient, cfg.Embedding.Model), nil
	case "openai":
		return services.NewOpenAIEmbedder(httpClient, cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model)
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
}

func (a *app) newIndex(ctx context.Context) (services.VectorIndex, error) {
	model := a.embedder.Model()
	switch a.cfg.Vector.Backend {
	case "chroma":
		client, err := chromago.NewHTTPClient(chromago.WithBaseURL(a.cfg.Vector.ChromaURL))
		if err != nil {
			return nil, fmt.Errorf("failed to create chroma client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		collection, err := services.OpenChromaCollection(ctx, client, a.cfg.Vector.Collection, a.embedder)
		if err != nil {
			return nil, err
		}
		return services.NewChromaIndex(collection, model), nil
	case "pgvector":
		index := services.NewPGVectorIndex(a.db, model, a.cfg.Vector.Dimension)
		if err := index.Migrate(ctx); err != nil {
			return nil, err
		}
		return index, nil
	case "memory":
		logrus.Warn("VECTOR: Using the in-memory index; vectors are lost on restart")
		return services.NewMemoryIndex().WithModel(model), nil
	}
	return nil, fmt.Errorf("unknown vector backend %q", a.cfg.Vector.Backend)
}

func newEngine(cfg *config.Config, geminiClient *genai.Client) (services.CompletionEngine, error) {
	params := services.CompletionParams{
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		TopP:        cfg.Completion.TopP,
	}
	switch cfg.Completion.Provider {
	case "groq", "openai":
		if cfg.Completion.APIKey == "" {
			return nil, errors.New("COMPLETION_API_KEY is required for the chat model")
		}
		llm, err := services.NewOpenAICompatibleModel(cfg.Completion.BaseURL, cfg.Completion.APIKey, cfg.Completion.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Completion.Provider, err)
		}
		return services.NewLangchainEngine(llm, params), nil
	case "gemini":
		return services.NewGeminiEngine(geminiClient, params), nil
	}
	return nil, fmt.Errorf("unknown completion provider %q", cfg.Completion.Provider)
}
