// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config is the root configuration struct.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Vector     VectorConfig
	Embedding  EmbeddingConfig
	Completion CompletionConfig
	Chat       ChatConfig
	Inbox      InboxConfig
	Unidoc     UnidocConfig
	Log        LogConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:""`
	Port string `envconfig:"PORT" default:"8080"`
	// Header carrying the authenticated user id, set by the auth proxy.
	UserHeader string `envconfig:"USER_HEADER" default:"X-User-ID"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Driver string `envconfig:"DRIVER" default:"sqlite"`
	DSN    string `envconfig:"DSN" default:"ainotes.db"`
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	Backend    string `envconfig:"BACKEND" default:"chroma"`
	ChromaURL  string `envconfig:"CHROMA_URL" default:"http://localhost:8000"`
	Collection string `envconfig:"COLLECTION" default:"ai-notes"`
	// Dimension is enforced when positive.
	Dimension int `envconfig:"DIMENSION" default:"0"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `envconfig:"PROVIDER" default:"ollama"`
	Model      string `envconfig:"MODEL"`
	BaseURL    string `envconfig:"BASE_URL"`
	APIKey     string `envconfig:"API_KEY"`
	MaxRetries uint64 `envconfig:"MAX_RETRIES" default:"2"`
}

// CompletionConfig selects the streaming chat model.
type CompletionConfig struct {
	Provider    string  `envconfig:"PROVIDER" default:"groq"`
	Model       string  `envconfig:"MODEL" default:"llama-3.3-70b-versatile"`
	BaseURL     string  `envconfig:"BASE_URL" default:"https://api.groq.com/openai/v1"`
	APIKey      string  `envconfig:"API_KEY"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"0.7"`
	MaxTokens   int     `envconfig:"MAX_TOKENS" default:"2048"`
	TopP        float64 `envconfig:"TOP_P" default:"1"`
}

// ChatConfig holds the retrieval parameters of the chat pipeline.
type ChatConfig struct {
	Window int `envconfig:"WINDOW" default:"6"`
	TopK   int `envconfig:"TOP_K" default:"4"`
}

// InboxConfig enables the watched import directory when Dir is set.
type InboxConfig struct {
	Dir     string `envconfig:"DIR"`
	OwnerID string `envconfig:"OWNER_ID"`
}

// UnidocConfig holds the PDF extraction license.
type UnidocConfig struct {
	LicenseKey string `envconfig:"LICENSE_KEY"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

// defaultEmbeddingModels is used when EMBEDDING_MODEL is empty.
var defaultEmbeddingModels = map[string]string{
	"ollama": "nomic-embed-text:v1.5",
	"gemini": "text-embedding-004",
	"openai": "mixedbread-ai/mxbai-embed-large-v1",
}

var defaultEmbeddingURLs = map[string]string{
	"ollama": "http://localhost:11434",
	"openai": "https://api.mixedbread.ai/v1",
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("CONFIG: No .env file found, relying on environment variables.")
	}

	cfg := &Config{}
	groups := []struct {
		prefix string
		target any
	}{
		{"SERVER", &cfg.Server},
		{"DATABASE", &cfg.Database},
		{"VECTOR", &cfg.Vector},
		{"EMBEDDING", &cfg.Embedding},
		{"COMPLETION", &cfg.Completion},
		{"CHAT", &cfg.Chat},
		{"INBOX", &cfg.Inbox},
		{"UNIDOC", &cfg.Unidoc},
		{"LOG", &cfg.Log},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return nil, fmt.Errorf("config: %s: %w", strings.ToLower(g.prefix), err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)
	c.Completion.Provider = strings.ToLower(c.Completion.Provider)
	c.Vector.Backend = strings.ToLower(c.Vector.Backend)
	c.Database.Driver = strings.ToLower(c.Database.Driver)

	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbeddingModels[c.Embedding.Provider]
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = defaultEmbeddingURLs[c.Embedding.Provider]
	}
	if c.Completion.Provider == "gemini" && c.Completion.Model == "llama-3.3-70b-versatile" {
		c.Completion.Model = "gemini-2.5-flash"
	}

	// Provider-native key variables are honoured when the scoped ones are unset.
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = providerKey(c.Embedding.Provider)
	}
	if c.Completion.APIKey == "" {
		c.Completion.APIKey = providerKey(c.Completion.Provider)
	}
}

func providerKey(provider string) string {
	switch provider {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// Validate rejects unknown backends and impossible chat parameters.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Vector.Backend {
	case "chroma", "memory":
	case "pgvector":
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("config: pgvector backend requires the postgres database driver")
		}
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.Vector.Backend)
	}
	switch c.Embedding.Provider {
	case "ollama":
	case "gemini", "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("config: EMBEDDING_API_KEY is required for provider %q", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Completion.Provider {
	case "groq", "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown completion provider %q", c.Completion.Provider)
	}
	if c.Chat.Window <= 0 {
		return fmt.Errorf("config: CHAT_WINDOW must be positive, got %d", c.Chat.Window)
	}
	if c.Chat.TopK <= 0 {
		return fmt.Errorf("config: CHAT_TOP_K must be positive, got %d", c.Chat.TopK)
	}
	if c.Inbox.Dir != "" && c.Inbox.OwnerID == "" {
		return fmt.Errorf("config: INBOX_OWNER_ID is required when INBOX_DIR is set")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		logrus.Warnf("CONFIG: invalid LOG_LEVEL %q, using info", c.Log.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.Log.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
