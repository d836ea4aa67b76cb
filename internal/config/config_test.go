package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEFAULT_COUNTRY_CODE", "")
	t.Setenv("RAG_MIN_SIMILARITY", "")
	t.Setenv("MEDIA_URL_TTL", "")
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "55", cfg.DefaultCountryCode)
	assert.Equal(t, "v21.0", cfg.WhatsAppAPIVersion)
	assert.Equal(t, 12, cfg.AgentHistoryLimit)
	assert.InDelta(t, 0.75, cfg.RAGMinSimilarity, 1e-9)
	assert.Equal(t, 7*24*time.Hour, cfg.MediaURLTTL)
	assert.Equal(t, int64(25<<20), cfg.MediaMaxBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "verify")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "token")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "1234")
	t.Setenv("DEFAULT_FUNNEL_NAME", "  Vendas  ")
	t.Setenv("RAG_MIN_SIMILARITY", "0.6")
	t.Setenv("NOTIFY_BASE_DELAY", "2s")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("MEDIA_PUBLIC_BASE_URL", "https://cdn.example.com/")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "Vendas", cfg.DefaultFunnelName)
	assert.InDelta(t, 0.6, cfg.RAGMinSimilarity, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.NotifyBaseDelay)
	assert.True(t, cfg.UseMemoryQueue)
	assert.Equal(t, "https://cdn.example.com", cfg.MediaPublicBaseURL)
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("NOTIFY_BASE_DELAY", "soon")
	cfg := Load()
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 500*time.Millisecond, cfg.NotifyBaseDelay)
}

func TestValidateReportsEveryMissingKey(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{
		"DATABASE_URL",
		"WHATSAPP_VERIFY_TOKEN",
		"WHATSAPP_ACCESS_TOKEN",
		"WHATSAPP_PHONE_NUMBER_ID",
		"DEFAULT_FUNNEL_NAME",
		"INBOX_QUEUE_URL",
	} {
		assert.True(t, strings.Contains(err.Error(), key), "missing %s in %q", key, err.Error())
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := &Config{
		DatabaseURL:           "postgres://localhost/realty",
		WhatsAppVerifyToken:   "verify",
		WhatsAppAccessToken:   "token",
		WhatsAppPhoneNumberID: "1234",
		DefaultFunnelName:     "Vendas",
		UseMemoryQueue:        true,
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("REALTY_DOTENV_PROBE=loaded\n"), 0o600))
	t.Setenv("REALTY_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("REALTY_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("REALTY_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
