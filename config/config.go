package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxTokens     = 1024
	defaultStageTimeout  = 60 * time.Second
	defaultPort          = "8080"
	defaultMongoDatabase = "case-gen"
	defaultSQLitePath    = "interrogation.db"

	defaultGroqAPIBase       = "https://api.groq.com/openai/v1"
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultOllamaURL         = "http://localhost:11434"
)

// defaultModels is the model used per inference service when MODEL is unset.
var defaultModels = map[string]string{
	"gemini":     "gemini-2.5-flash",
	"anthropic":  "claude-3-5-haiku-latest",
	"openai":     "gpt-4o-mini",
	"groq":       "llama-3.1-8b-instant",
	"openrouter": "deepseek/deepseek-chat-v3.1:free",
	"ollama":     "llama3.1",
}

// Inference holds the text-generation backend settings.
type Inference struct {
	Service   string
	Model     string
	ModelKey  string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// Store holds the audit persistence settings.
type Store struct {
	Kind          string
	MongoURI      string
	MongoDatabase string
	SQLitePath    string
	SupabaseURL   string
	SupabaseKey   string
}

// Config is built once at startup and passed by pointer; nothing mutates it
// afterwards.
type Config struct {
	Inference      Inference
	Store          Store
	StageTimeout   time.Duration
	CritiqueMatch  string
	PromptsVersion string
	Port           string
	AllowedOrigins []string
}

// Load reads the process environment into a Config.
func Load(promptsVersion string) (*Config, error) {
	maxTokens, err := GetMaxTokens()
	if err != nil {
		return nil, err
	}
	stageTimeout, err := GetStageTimeout()
	if err != nil {
		return nil, err
	}

	service := GetInferenceService()
	model := GetModel(service)
	modelKey := os.Getenv("MODEL_KEY")
	if modelKey == "" {
		modelKey = model
	}

	version := os.Getenv("PROMPTS_VERSION")
	if version == "" {
		version = promptsVersion
	}

	return &Config{
		Inference: Inference{
			Service:   service,
			Model:     model,
			ModelKey:  modelKey,
			APIKey:    GetAPIKey(service),
			BaseURL:   GetAPIBase(service),
			MaxTokens: maxTokens,
		},
		Store: Store{
			Kind:          GetStoreKind(),
			MongoURI:      GetMongoDBURI(),
			MongoDatabase: getOrDefault("MONGODB_DATABASE", defaultMongoDatabase),
			SQLitePath:    getOrDefault("SQLITE_PATH", defaultSQLitePath),
			SupabaseURL:   os.Getenv("SUPABASE_URL"),
			SupabaseKey:   os.Getenv("SUPABASE_KEY"),
		},
		StageTimeout:   stageTimeout,
		CritiqueMatch:  strings.ToLower(getOrDefault("CRITIQUE_MATCH", "strict")),
		PromptsVersion: version,
		Port:           getOrDefault("PORT", defaultPort),
		AllowedOrigins: GetAllowedOrigins(),
	}, nil
}

// GetInferenceService returns the backend kind, defaulting to gemini.
func GetInferenceService() string {
	return strings.ToLower(getOrDefault("INFERENCE_SERVICE", "gemini"))
}

// GetModel returns MODEL, falling back to GEMINI_MODEL for the gemini
// service and then to the per-service default.
func GetModel(service string) string {
	if model := os.Getenv("MODEL"); model != "" {
		return model
	}
	if service == "gemini" {
		if model := os.Getenv("GEMINI_MODEL"); model != "" {
			return model
		}
	}
	return defaultModels[service]
}

// GetAPIKey returns API_KEY or the vendor-specific variable.
func GetAPIKey(service string) string {
	if key := os.Getenv("API_KEY"); key != "" {
		return key
	}
	switch service {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	}
	return ""
}

// GetAPIBase returns the endpoint override for the service. Empty means the
// client library default.
func GetAPIBase(service string) string {
	switch service {
	case "gemini":
		return os.Getenv("GEMINI_API_BASE")
	case "openai":
		return os.Getenv("OPENAI_API_BASE")
	case "groq":
		return getOrDefault("GROQ_API_BASE", defaultGroqAPIBase)
	case "openrouter":
		return getOrDefault("OPENROUTER_API_BASE", defaultOpenRouterAPIBase)
	case "ollama":
		return getOrDefault("OLLAMA_URL", defaultOllamaURL)
	}
	return ""
}

// GetMaxTokens returns the completion token limit.
func GetMaxTokens() (int, error) {
	raw := os.Getenv("MAX_TOKENS")
	if raw == "" {
		return defaultMaxTokens, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("MAX_TOKENS must be a positive integer, got %q", raw)
	}
	return n, nil
}

// GetStageTimeout accepts a Go duration ("45s") or a number of seconds.
func GetStageTimeout() (time.Duration, error) {
	raw := os.Getenv("STAGE_TIMEOUT")
	if raw == "" {
		return defaultStageTimeout, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("STAGE_TIMEOUT must be a positive duration, got %q", raw)
	}
	return d, nil
}

// GetStoreKind returns STORE, or mongo when only MONGODB_URI is set.
func GetStoreKind() string {
	if kind := os.Getenv("STORE"); kind != "" {
		return strings.ToLower(kind)
	}
	if GetMongoDBURI() != "" {
		return "mongo"
	}
	return "none"
}

// GetMongoDBURI returns the MongoDB connection URI from environment variable
func GetMongoDBURI() string {
	return os.Getenv("MONGODB_URI")
}

// GetAllowedOrigins returns the comma-separated CORS origins.
func GetAllowedOrigins() []string {
	raw := os.Getenv("ALLOWED_ORIGINS")
	if raw == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func getOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
