package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvLlamaServer, "")
	t.Setenv(EnvOpenAIKey, "")
	t.Setenv(EnvAnthropicKey, "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, DefaultLlamaServer, cfg.Captioners[0].Addr)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvLlamaServer, "")
	t.Setenv(EnvOpenAIKey, "sk-test")

	path := writeFile(t, "dixit.yaml", `
llm:
  backend: openai
  model: gpt-4o
vqa:
  backend: llama
  addr: http://vqa:8080
captioners:
  - backend: llama
    name: llava
  - backend: anthropic
    name: claude
clue_turns: 0
personality: poet
caption_cache_ttl: 1h
http_timeout: 45s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, BackendConfig{Backend: BackendOpenAI, Model: "gpt-4o"}, cfg.LLM)
	require.Equal(t, "http://vqa:8080", cfg.VQA.Addr)
	require.Len(t, cfg.Captioners, 2)
	require.Equal(t, DefaultLlamaServer, cfg.Captioners[0].Addr)
	require.Equal(t, "claude", cfg.Captioners[1].DisplayName())
	require.Equal(t, 0, cfg.ClueTurns)
	require.Equal(t, DefaultGuessTurns, cfg.GuessTurns)
	require.Equal(t, "poet", cfg.Personality)
	require.Equal(t, time.Hour, cfg.CaptionCacheTTL)
	require.Equal(t, 45*time.Second, cfg.HTTPTimeout)
	require.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLlamaServerOverride(t *testing.T) {
	t.Setenv(EnvLlamaServer, "http://gpu-box:9000")

	path := writeFile(t, "dixit.yaml", `
llm:
  backend: openai
captioners:
  - backend: llama
    addr: http://elsewhere:8080
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "", cfg.LLM.Addr)
	require.Equal(t, "http://gpu-box:9000", cfg.VQA.Addr)
	require.Equal(t, "http://gpu-box:9000", cfg.Captioners[0].Addr)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"no captioners", "captioners: []"},
		{"unknown backend", "llm:\n  backend: gemini"},
		{"duplicate captioners", "captioners:\n  - backend: openai\n  - backend: openai"},
		{"empty personality", "personality: ' '"},
		{"negative turns", "clue_turns: -1"},
		{"no concurrency", "guess_concurrency: 0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "dixit.yaml", tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, ".env", "DIXIT_TEST_VALUE=from-dotenv\n")
	t.Setenv("DIXIT_TEST_VALUE", "")
	os.Unsetenv("DIXIT_TEST_VALUE")

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	require.Equal(t, "from-dotenv", os.Getenv("DIXIT_TEST_VALUE"))
}
