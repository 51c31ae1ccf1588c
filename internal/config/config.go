package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Port      string
	APIPrefix string
	LogLevel  slog.Level

	// LLMProvider selects the backend: "openai" or "anthropic".
	LLMProvider string

	// OpenAI-compatible backend
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Anthropic Messages API backend
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	// Generation options
	MaxTokens        int
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
	Temperatures     Temperatures

	// Chunking
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int

	// Strategy
	ShortTextThreshold   int
	MainPointsChunks     int
	SummaryFallbackChars int
	MaxMindmapDepth      int

	// Oversized input truncation
	MaxInputTokens int
	CharsPerToken  float64
	TextHeadRatio  float64
	TextTailRatio  float64

	// Timeouts and retries
	GenerationTimeout time.Duration
	RequestTimeout    time.Duration
	StreamTimeout     time.Duration
	MaxRetries        int
	RetryDelay        time.Duration

	// Concurrency
	MaxConcurrentRequests int
	ChunkBatchSize        int
	LLMRateLimit          float64
	LLMRateBurst          int

	// Caches
	CacheMaxItems  int
	CacheTTL       time.Duration
	CacheKeyLength int

	// Streaming
	StreamBufferSize  int
	StreamKeepAlive   time.Duration
	StreamIdleTimeout time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Finished runs stay queryable this long.
	RunTTL time.Duration
}

// Temperatures holds the sampling temperature used for each generation scenario.
type Temperatures struct {
	Mindmap   float64
	Summary   float64
	Structure float64
	Section   float64
	Detail    float64
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{
		Port:      envOr("PORT", "8000"),
		APIPrefix: envOr("API_PREFIX", "/api/v1"),
		LogLevel:  envLevel("LOG_LEVEL", slog.LevelInfo),

		LLMProvider: strings.ToLower(envOr("LLM_PROVIDER", ProviderOpenAI)),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: strings.TrimRight(envOr("OPENAI_API_BASE", "https://api.openai.com/v1"), "/"),
		OpenAIModel:   envOr("OPENAI_MODEL", "gpt-4o-mini"),

		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: strings.TrimRight(envOr("ANTHROPIC_API_BASE", "https://api.anthropic.com/v1"), "/"),
		AnthropicModel:   envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		MaxTokens:        envInt("LLM_MAX_TOKENS", 4000),
		TopP:             envFloat("LLM_TOP_P", 0.7),
		PresencePenalty:  envFloat("LLM_PRESENCE_PENALTY", 0),
		FrequencyPenalty: envFloat("LLM_FREQUENCY_PENALTY", 0),
		Temperatures: Temperatures{
			Mindmap:   envFloat("TEMPERATURE_MINDMAP", 0.8),
			Summary:   envFloat("TEMPERATURE_SUMMARY", 1.0),
			Structure: envFloat("TEMPERATURE_STRUCTURE", 1.0),
			Section:   envFloat("TEMPERATURE_SECTION", 1.0),
			Detail:    envFloat("TEMPERATURE_DETAIL", 1.0),
		},

		ChunkSize:      envInt("CHUNK_SIZE", 12000),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", 200),
		MinChunkLength: envInt("MIN_CHUNK_LENGTH", 1000),

		ShortTextThreshold:   envInt("SHORT_TEXT_THRESHOLD", 8000),
		MainPointsChunks:     envInt("MAIN_POINTS_CHUNKS", 3),
		SummaryFallbackChars: envInt("SUMMARY_FALLBACK_CHARS", 200),
		MaxMindmapDepth:      envInt("MAX_MINDMAP_DEPTH", 3),

		MaxInputTokens: envInt("MAX_INPUT_TOKENS", 128000),
		CharsPerToken:  envFloat("CHARS_PER_TOKEN", 0.7),
		TextHeadRatio:  envFloat("TEXT_HEAD_RATIO", 0.8),
		TextTailRatio:  envFloat("TEXT_TAIL_RATIO", 0.2),

		GenerationTimeout: envDuration("GENERATION_TIMEOUT", 30*time.Second),
		RequestTimeout:    envDuration("REQUEST_TIMEOUT", 120*time.Second),
		StreamTimeout:     envDuration("STREAM_TIMEOUT", 30*time.Minute),
		MaxRetries:        envInt("MAX_RETRIES", 3),
		RetryDelay:        envDuration("RETRY_DELAY", time.Second),

		MaxConcurrentRequests: envInt("MAX_CONCURRENT_REQUESTS", 3),
		ChunkBatchSize:        envInt("CHUNK_BATCH_SIZE", 3),
		LLMRateLimit:          envFloat("LLM_RATE_LIMIT", 5),
		LLMRateBurst:          envInt("LLM_RATE_BURST", 5),

		CacheMaxItems:  envInt("CACHE_MAX_ITEMS", 1000),
		CacheTTL:       envDuration("CACHE_TTL", time.Hour),
		CacheKeyLength: envInt("CACHE_KEY_LENGTH", 1000),

		StreamBufferSize:  envInt("STREAM_BUFFER_SIZE", 10),
		StreamKeepAlive:   envDuration("STREAM_KEEPALIVE", 15*time.Second),
		StreamIdleTimeout: envDuration("STREAM_IDLE_TIMEOUT", 60*time.Second),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		RunTTL:         envDuration("RUN_TTL", time.Hour),
	}

	cfg.applyDefaults()
	return cfg
}

// Default returns the configuration with every option at its default value,
// ignoring the environment.
func Default() Config {
	var cfg Config
	cfg.LogLevel = slog.LevelInfo
	cfg.APIPrefix = "/api/v1"
	cfg.Port = "8000"
	cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	cfg.OpenAIModel = "gpt-4o-mini"
	cfg.AnthropicBaseURL = "https://api.anthropic.com/v1"
	cfg.AnthropicModel = "claude-sonnet-4-20250514"
	cfg.TopP = 0.7
	cfg.RetryDelay = time.Second
	cfg.Temperatures = Temperatures{Mindmap: 0.8, Summary: 1.0, Structure: 1.0, Section: 1.0, Detail: 1.0}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLMProvider == "" {
		c.LLMProvider = ProviderOpenAI
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 12000
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 200
	}
	if c.MinChunkLength <= 0 {
		c.MinChunkLength = 1000
	}
	if c.ShortTextThreshold <= 0 {
		c.ShortTextThreshold = 8000
	}
	if c.MainPointsChunks <= 0 {
		c.MainPointsChunks = 3
	}
	if c.SummaryFallbackChars <= 0 {
		c.SummaryFallbackChars = 200
	}
	if c.MaxMindmapDepth <= 0 {
		c.MaxMindmapDepth = 3
	}
	if c.MaxInputTokens <= 0 {
		c.MaxInputTokens = 128000
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = 0.7
	}
	if c.TextHeadRatio <= 0 {
		c.TextHeadRatio = 0.8
	}
	if c.TextTailRatio <= 0 {
		c.TextTailRatio = 0.2
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 30 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = 3
	}
	if c.ChunkBatchSize <= 0 {
		c.ChunkBatchSize = 3
	}
	if c.LLMRateLimit <= 0 {
		c.LLMRateLimit = 5
	}
	if c.LLMRateBurst <= 0 {
		c.LLMRateBurst = 5
	}
	if c.CacheMaxItems <= 0 {
		c.CacheMaxItems = 1000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.CacheKeyLength <= 0 {
		c.CacheKeyLength = 1000
	}
	if c.StreamBufferSize <= 0 {
		c.StreamBufferSize = 10
	}
	if c.StreamKeepAlive <= 0 {
		c.StreamKeepAlive = 15 * time.Second
	}
	if c.StreamIdleTimeout <= 0 {
		c.StreamIdleTimeout = 60 * time.Second
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.RunTTL <= 0 {
		c.RunTTL = time.Hour
	}
}

func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.LLMProvider)
	}
	if c.MaxMindmapDepth > 5 {
		return fmt.Errorf("MAX_MINDMAP_DEPTH must be between 1 and 5, got %d", c.MaxMindmapDepth)
	}
	if c.TextHeadRatio+c.TextTailRatio > 1 {
		return fmt.Errorf("TEXT_HEAD_RATIO + TEXT_TAIL_RATIO must not exceed 1")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s") and bare numbers of seconds ("30").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return lvl
}
