package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/pkg/proto"
)

func TestLoadRequiresStagePrompts(t *testing.T) {
	t.Setenv("CHECKIN_BUILTIN_PROMPTS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHECKIN_BEGIN_CONVERSATION_SYSTEM_PROMPT")

	// Configuring one stage does not excuse the next.
	t.Setenv("CHECKIN_BEGIN_CONVERSATION_SYSTEM_PROMPT", "greet the passenger")
	t.Setenv("CHECKIN_BEGIN_CONVERSATION_CONTINUE_PROMPT", "continue")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRIP_IDENTIFICATION")
}

func TestLoadBuiltinPromptsOptIn(t *testing.T) {
	t.Setenv("CHECKIN_BUILTIN_PROMPTS", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "gpt-4.1", cfg.Model)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 6, cfg.MaxModelCalls)
	assert.Equal(t, 16, cfg.MaxStageHops)

	for _, stage := range proto.AllStages() {
		p, err := cfg.StagePrompts(stage)
		require.NoError(t, err, "stage %s", stage)
		assert.NotEmpty(t, p.System)
		assert.NotEmpty(t, p.Continue)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHECKIN_BUILTIN_PROMPTS", "1")
	t.Setenv("CHECKIN_LISTEN_ADDR", ":9999")
	t.Setenv("CHECKIN_SESSION_TTL_MINUTES", "5")
	t.Setenv("CHECKIN_BEGIN_CONVERSATION_SYSTEM_PROMPT", "custom system")
	t.Setenv("CHECKIN_BEGIN_CONVERSATION_TOOL_CHOICE", "none")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)

	// Env vars win over the built-in sample set.
	p, err := cfg.StagePrompts(proto.StageBeginConversation)
	require.NoError(t, err)
	assert.Equal(t, "custom system", p.System)
	assert.Equal(t, "none", p.ToolChoice)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CHECKIN_BUILTIN_PROMPTS", "1")

	t.Setenv("CHECKIN_SESSION_TTL_MINUTES", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHECKIN_SESSION_TTL_MINUTES")

	t.Setenv("CHECKIN_SESSION_TTL_MINUTES", "")
	t.Setenv("CHECKIN_STORE", "redis")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestStagePromptsUnknownStage(t *testing.T) {
	t.Setenv("CHECKIN_BUILTIN_PROMPTS", "1")
	cfg, err := Load()
	require.NoError(t, err)
	_, err = cfg.StagePrompts(proto.Stage("NOT_A_STAGE"))
	require.Error(t, err)
}
