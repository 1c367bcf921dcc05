package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "*.csv", cfg.DataGlob)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAIModel)
	assert.Equal(t, 15*time.Second, cfg.StreamHeartbeat)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, RecorderFile, cfg.Recorder)
	assert.Equal(t, []string{"http://localhost:5175", "http://127.0.0.1:5175"}, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_PORT", "9100")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("TELEGRAM_ALLOWED_USERS", "1:2:3")
	t.Setenv("EVENT_QUEUE_DEPTH", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, []int64{1, 2, 3}, cfg.AllowedUsers)
	assert.Equal(t, 8, cfg.EventQueueDepth)
	assert.True(t, cfg.LLMConfigured())
}

func TestLoad_RejectsUnknownRecorder(t *testing.T) {
	t.Setenv("RECORDER", "postgres")
	_, err := Load()
	require.Error(t, err)
}

func TestLLMConfigured(t *testing.T) {
	cfg := &Config{LLMProvider: ProviderOpenAI}
	assert.False(t, cfg.LLMConfigured())
	cfg.OpenAIAPIKey = "sk"
	assert.True(t, cfg.LLMConfigured())

	cfg = &Config{LLMProvider: ProviderYandex, YandexOAuthToken: "t"}
	assert.False(t, cfg.LLMConfigured())
	cfg.YandexFolderID = "f"
	assert.True(t, cfg.LLMConfigured())

	cfg = &Config{LLMProvider: "other"}
	assert.False(t, cfg.LLMConfigured())
}
