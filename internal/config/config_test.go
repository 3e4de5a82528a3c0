package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validYAML = `
debug: true
default-model: gpt-4o-mini
summary-model: gpt-4o-mini
request-timeout-seconds: 15
conversation:
  max-conversations: 25
  ttl-minutes: 10
fallback:
  max-retries: 2
  chain:
    gpt-4o: gpt-4o-mini
    gpt-4o-mini: local-llm
models:
  - id: gpt-4o
    name: GPT-4o
    family: openai
    vision: true
    streaming: true
    privacy: cloud
    api-key-env: OPENAI_API_KEY
  - id: gpt-4o-mini
    name: GPT-4o Mini
    family: openai
    streaming: true
    privacy: cloud
    api-key-env: OPENAI_API_KEY
  - id: local-llm
    name: Local LLM
    family: ollama
    privacy: local
    remote-name: llama3.1:8b
    base-url: http://localhost:11434
`

func TestLoadConfigValid(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 25, cfg.Conversation.MaxConversations)
	assert.Equal(t, 10*time.Minute, cfg.Conversation.TTL())
	assert.Len(t, cfg.Models, 3)
	assert.Equal(t, "local-llm", cfg.Fallback.Chain["gpt-4o-mini"])
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "models:\n  - id: only\n    family: mock\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultModelID, cfg.DefaultModel)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 50, cfg.Conversation.MaxConversations)
	assert.Equal(t, 20, cfg.Conversation.MaxMessagesPerConversation)
	assert.Equal(t, 30*time.Minute, cfg.Conversation.TTL())
	assert.Equal(t, 2, cfg.Fallback.MaxRetries)
	// RemoteName falls back to the model id.
	assert.Equal(t, "only", cfg.Models[0].RemoteName)
}

func TestStreamingDefaultsToEnabled(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "models: []\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Streaming())

	cfg, err = LoadConfig(writeConfig(t, "streaming-enabled: false\nmodels: []\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Streaming())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "models: [unclosed\n"))
	require.Error(t, err)
}

func TestValidateRejectsDuplicateModelIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelSpec{{ID: "dup"}, {ID: "dup"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateRejectsUnknownPrivacy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelSpec{{ID: "m", Privacy: "secret"}}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsChainToUnknownModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelSpec{{ID: "a"}}
	cfg.Fallback.Chain = map[string]string{"a": "ghost"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateRejectsSelfLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelSpec{{ID: "a"}}
	cfg.Fallback.Chain = map[string]string{"a": "a"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-loop")
}

func TestValidateRejectsChainCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelSpec{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	cfg.Fallback.Chain = map[string]string{"a": "b", "b": "c", "c": "a"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateAcceptsSharedFallbackTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelSpec{{ID: "a"}, {ID: "b"}, {ID: "shared"}}
	cfg.Fallback.Chain = map[string]string{"a": "shared", "b": "shared"}
	require.NoError(t, cfg.Validate())
}
