package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LLM_PROVIDER", "OPENAI_API_KEY", "GROQ_API_KEY", "SYSTEM_PROMPT", "HISTORY_LIMIT", "ARK_MODEL", "ARK_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, DefaultSystemPrompt, cfg.Chat.SystemPrompt)
	assert.Equal(t, DefaultHistoryLimit, cfg.Chat.HistoryLimit)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.OpenAI.BaseURL)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.OpenAI.Model)

	_, ok := cfg.LLM.Active()
	assert.False(t, ok)
}

func TestLoadGroqKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("LLM_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gsk-test", cfg.LLM.OpenAI.APIKey)
	provider, ok := cfg.LLM.Active()
	assert.True(t, ok)
	assert.Equal(t, ProviderOpenAI, provider)
}

func TestLoadExplicitArkWithoutCredentials(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ark")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	provider, ok := cfg.LLM.Active()
	assert.Equal(t, ProviderArk, provider)
	assert.False(t, ok)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mystery")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ARK_TEMPERATURE", "hot")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadServerConfig(t *testing.T) {
	cases := map[string]string{
		"9000":           ":9000",
		":9001":          ":9001",
		"127.0.0.1:9002": "127.0.0.1:9002",
		"":               ":8000",
	}
	for in, want := range cases {
		got, err := loadServerConfig(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Addr)
	}

	_, err := loadServerConfig("80 80")
	assert.Error(t, err)
}

func TestLoadClientLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint = "http://chat.example:9000"
transport = "websocket"
storage = "sqlite"
data_dir = "`+dir+`"
request_timeout = "5s"
`), 0o600))

	t.Setenv("STREAMCHAT_STORAGE", "memory")

	cfg, err := LoadClient(path)
	require.NoError(t, err)

	assert.Equal(t, "http://chat.example:9000", cfg.Endpoint)
	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.ScrollThreshold)
	assert.Equal(t, filepath.Join(dir, "streamchat.log"), cfg.LogPath())
}

func TestLoadClientMissingDefaultFileIsFine(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.Transport)
}

func TestLoadClientMissingExplicitFileFails(t *testing.T) {
	_, err := LoadClient(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestClientValidate(t *testing.T) {
	cfg := DefaultClientConfig()
	require.NoError(t, cfg.Validate())

	cfg.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultClientConfig()
	cfg.Storage = "tape"
	assert.Error(t, cfg.Validate())
}

func TestStatePath(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.DataDir = "/data"

	cfg.Storage = StorageSQLite
	assert.Equal(t, filepath.Join("/data", "chat.db"), cfg.StatePath())
	cfg.Storage = StorageFile
	assert.Equal(t, filepath.Join("/data", "chat.json"), cfg.StatePath())
	cfg.Storage = StorageMemory
	assert.Empty(t, cfg.StatePath())
}
