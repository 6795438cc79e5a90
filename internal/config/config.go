package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Search  SearchConfig
	Session SessionConfig
	Storage StorageConfig
	Log     LogConfig
	Tracing TracingConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	search, err := loadSearchConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	tracing, err := loadTracingConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Search:  search,
		Session: session,
		Storage: storage,
		Log:     loadLogConfig(),
		Tracing: tracing,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig describes the completion provider.
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
	SelfReflection bool
}

// Enabled reports whether the credentials needed for a chat model are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates the Ark chat model described by the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY (or ARK_ACCESS_KEY + ARK_SECRET_KEY) and Model")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	reflection, err := parseBoolEnv("AI_SELF_REFLECTION", false)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("Model")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
		SelfReflection: reflection,
	}, nil
}

// Search providers.
const (
	SearchProviderSerpAPI    = "serpapi"
	SearchProviderDuckDuckGo = "duckduckgo"
	SearchProviderNone       = "none"
)

// SearchConfig describes the web search provider.
type SearchConfig struct {
	Provider   string
	SerpAPIKey string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	RatePerSec float64
}

func loadSearchConfig() (SearchConfig, error) {
	key := strings.TrimSpace(os.Getenv("SERPAPI_KEY"))

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("SEARCH_PROVIDER")))
	if provider == "" {
		provider = SearchProviderDuckDuckGo
		if key != "" {
			provider = SearchProviderSerpAPI
		}
	}
	switch provider {
	case SearchProviderSerpAPI, SearchProviderDuckDuckGo, SearchProviderNone:
	default:
		return SearchConfig{}, fmt.Errorf("invalid SEARCH_PROVIDER value %q", provider)
	}
	if provider == SearchProviderSerpAPI && key == "" {
		return SearchConfig{}, fmt.Errorf("SEARCH_PROVIDER=serpapi requires SERPAPI_KEY")
	}

	maxResults := 3
	if override, err := parseOptionalIntEnv("SEARCH_MAX_RESULTS"); err != nil {
		return SearchConfig{}, err
	} else if override != nil && *override > 0 {
		maxResults = *override
	}

	timeout, err := parseDurationEnv("SEARCH_TIMEOUT", 15*time.Second)
	if err != nil {
		return SearchConfig{}, err
	}

	rate := 2.0
	if override, err := parseOptionalFloatEnv("SEARCH_RATE_PER_SEC"); err != nil {
		return SearchConfig{}, err
	} else if override != nil && *override > 0 {
		rate = *override
	}

	return SearchConfig{
		Provider:   provider,
		SerpAPIKey: key,
		BaseURL:    strings.TrimSpace(os.Getenv("SEARCH_BASE_URL")),
		MaxResults: maxResults,
		Timeout:    timeout,
		RatePerSec: rate,
	}, nil
}

// SessionConfig describes session storage.
type SessionConfig struct {
	Driver          string
	TTL             time.Duration
	CleanupInterval time.Duration
	RedisURL        string
	SystemPrompt    string
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	cleanup, err := parseDurationEnv("SESSION_CLEANUP_INTERVAL", 10*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	driver := strings.ToLower(getEnvOrDefault("SESSION_STORE", "memory"))
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if driver == "redis" && redisURL == "" {
		return SessionConfig{}, fmt.Errorf("SESSION_STORE=redis requires REDIS_URL")
	}

	return SessionConfig{
		Driver:          driver,
		TTL:             ttl,
		CleanupInterval: cleanup,
		RedisURL:        redisURL,
		SystemPrompt:    getEnvOrDefault("SESSION_SYSTEM_PROMPT", "You are a helpful research assistant."),
	}, nil
}

// StorageConfig describes on-disk artifact locations.
type StorageConfig struct {
	UploadDir      string
	ExportDir      string
	UploadMaxBytes int64
}

func loadStorageConfig() (StorageConfig, error) {
	maxBytes := int64(20 << 20)
	if override, err := parseOptionalIntEnv("UPLOAD_MAX_BYTES"); err != nil {
		return StorageConfig{}, err
	} else if override != nil && *override > 0 {
		maxBytes = int64(*override)
	}

	return StorageConfig{
		UploadDir:      getEnvOrDefault("UPLOAD_DIR", "uploaded_files"),
		ExportDir:      getEnvOrDefault("EXPORT_DIR", "exports"),
		UploadMaxBytes: maxBytes,
	}, nil
}

// LogConfig describes logger outputs.
type LogConfig struct {
	FilePath   string
	Production bool
}

func loadLogConfig() LogConfig {
	return LogConfig{
		FilePath:   getEnvOrDefault("LOG_FILE", "logs/app.log"),
		Production: strings.EqualFold(os.Getenv("APP_ENV"), "production"),
	}
}

// TracingConfig describes the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func loadTracingConfig() (TracingConfig, error) {
	enabled, err := parseBoolEnv("OTEL_ENABLED", false)
	if err != nil {
		return TracingConfig{}, err
	}

	return TracingConfig{
		Enabled:     enabled,
		Endpoint:    getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", "synthesis-talk-backend"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
