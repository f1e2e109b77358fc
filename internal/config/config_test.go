package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"embedders":[{"provider":"openai","model":"jina-embeddings-v3"}]}`))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "memory", cfg.VectorStore.Type)
	require.Equal(t, "Documents", cfg.VectorStore.Collection)
	require.Equal(t, 1024, cfg.VectorStore.Dimension)
	require.Equal(t, "l2", cfg.VectorStore.Metric)
	require.Equal(t, "openai:jina-embeddings-v3", cfg.Embedders[0].Name)
	require.Len(t, cfg.Models, 7)
	require.Equal(t, "file", cfg.PromptStore.Type)
	require.Equal(t, 200, cfg.Chunk.Size)
	require.Equal(t, 50, cfg.Chunk.OverlapWords())
	require.Equal(t, "egune-test", cfg.Chunk.AppID)
	require.Equal(t, 5, cfg.Search.Limit)
	require.InDelta(t, 0.25, cfg.Search.MaxDistance, 1e-9)
}

func TestLoad_ExplicitZeroOverlap(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"embedders":[{"provider":"openai","model":"m"}],"chunk":{"size":100,"overlap":0}}`))
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Chunk.OverlapWords())
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"no embedder":     `{}`,
		"bad metric":      `{"embedders":[{"provider":"openai","model":"m"}],"vector_store":{"metric":"ip"}}`,
		"duplicate model": `{"embedders":[{"provider":"openai","model":"m"}],"models":[{"id":"a/b","provider":"openai"},{"id":"a/b","provider":"openai"}]}`,
		"db prompts":      `{"embedders":[{"provider":"openai","model":"m"}],"prompt_store":{"type":"db"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestDescriptors_ResolveEnvironment(t *testing.T) {
	t.Setenv("EGUNE_API_KEY", "egune-key")
	t.Setenv("EGUNE_BASE_URL", "http://egune.local/v1")
	cfg := &Config{Embedders: []EmbedderConfig{{Provider: "openai", Model: "m"}}}
	require.NoError(t, cfg.normalize())

	var found bool
	for _, d := range cfg.Descriptors() {
		if d.ID != "chimege/chat-egune-v0.5" {
			continue
		}
		found = true
		require.Equal(t, "chimege", d.ProviderClass)
		require.Equal(t, "egune", d.Label)
		require.Equal(t, "egune-key", d.APIKey)
		require.Equal(t, "http://egune.local/v1", d.BaseURL)
		require.Equal(t, 90*time.Second, d.Timeout)
	}
	require.True(t, found)
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RAGCHAT_TEST_KEY=from-file\n"), 0o644))
	t.Setenv("RAGCHAT_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("RAGCHAT_TEST_KEY"))
	require.NoError(t, LoadEnv(path))
	require.Equal(t, "from-file", os.Getenv("RAGCHAT_TEST_KEY"))
}

func TestEmbedderConfig_ProviderArgs(t *testing.T) {
	t.Setenv("JINA_KEY", "secret")
	args := EmbedderConfig{APIKeyEnv: "JINA_KEY", Data: map[string]interface{}{"base_url": "http://x"}}.ProviderArgs()
	require.Equal(t, "secret", args["api_key"])
	require.Equal(t, "http://x", args["base_url"])
}
