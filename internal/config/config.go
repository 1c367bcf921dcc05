package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
	ProviderGemini LLMProvider = "gemini"
)

type RecorderBackend string

const (
	RecorderFile   RecorderBackend = "file"
	RecorderSQLite RecorderBackend = "sqlite"
	RecorderNone   RecorderBackend = "none"
)

type Config struct {
	// HTTP
	Port            int           `env:"BACKEND_PORT" envDefault:"8000"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5175,http://127.0.0.1:5175"`
	StreamHeartbeat time.Duration `env:"STREAM_HEARTBEAT" envDefault:"15s"`

	// Datasets
	DataDir      string `env:"DATA_DIR" envDefault:"data"`
	DataGlob     string `env:"DATA_GLOB" envDefault:"*.csv"`
	WatchDataDir bool   `env:"WATCH_DATA_DIR" envDefault:"true"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`
	GeminiAPIKey     string      `env:"GEMINI_API_KEY"`
	GeminiModel      string      `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	PromptsPath      string `env:"PROMPTS_PATH"`
	ResponseLanguage string `env:"RESPONSE_LANGUAGE" envDefault:"Portuguese"`

	// Sessions and progress events
	EventQueueDepth int           `env:"EVENT_QUEUE_DEPTH" envDefault:"256"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SweepSchedule   string        `env:"SWEEP_SCHEDULE" envDefault:"@every 10m"`
	ReportSchedule  string        `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Interaction log
	Recorder    RecorderBackend `env:"RECORDER" envDefault:"file"`
	LogFilePath string          `env:"LOG_FILE_PATH" envDefault:"logs/interactions.jsonl"`
	SQLitePath  string          `env:"SQLITE_PATH" envDefault:"var/datalab.db"`

	// Telegram frontend, disabled without a token
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers     []int64 `env:"TELEGRAM_ALLOWED_USERS" envSeparator:":"`

	Debug bool `env:"DEBUG"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.EventQueueDepth < 0 {
		return nil, fmt.Errorf("EVENT_QUEUE_DEPTH must not be negative, got %d", cfg.EventQueueDepth)
	}
	switch cfg.Recorder {
	case RecorderFile, RecorderSQLite, RecorderNone:
	default:
		return nil, fmt.Errorf("unknown RECORDER backend: %s", cfg.Recorder)
	}
	return cfg, nil
}

// LLMConfigured reports whether the selected provider has credentials.
func (c *Config) LLMConfigured() bool {
	switch c.LLMProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderYandex:
		return c.YandexOAuthToken != "" && c.YandexFolderID != ""
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	default:
		return false
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
