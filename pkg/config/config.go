// Package config builds the service configuration once at startup from the
// environment, an optional .env file, and the encrypted secrets file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"checkin/pkg/proto"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// StagePrompts is the prompt set one stage hands to the agent loop.
type StagePrompts struct {
	System        string
	Continue      string
	NotesTemplate string
	ToolChoice    string
}

// Config is the resolved service configuration.
type Config struct {
	ListenAddr string
	ToolsAddr  string

	StoreBackend string
	SQLitePath   string
	SessionTTL   time.Duration

	Model        string
	OpenAIKey    string
	AnthropicKey string
	OllamaHost   string

	GatewayConfigPath string
	BackendBaseURL    string

	MaxModelCalls int
	MaxRetries    int
	MaxStageHops  int

	PrometheusURL string

	Prompts map[proto.Stage]StagePrompts
}

// Load resolves configuration. A .env file in the working directory is
// loaded first when present; explicit environment variables win. Missing
// stage prompts are a startup error.
func Load() (*Config, error) {
	// Best effort; the environment may carry everything already.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:        envOr("CHECKIN_LISTEN_ADDR", ":8080"),
		ToolsAddr:         envOr("CHECKIN_TOOLS_ADDR", ":8090"),
		StoreBackend:      envOr("CHECKIN_STORE", StoreMemory),
		SQLitePath:        envOr("CHECKIN_SQLITE_PATH", "checkin.db"),
		Model:             envOr("CHECKIN_MODEL", "gpt-4.1"),
		OllamaHost:        envOr("OLLAMA_HOST", "http://localhost:11434"),
		GatewayConfigPath: envOr("CHECKIN_GATEWAY_CONFIG", "config/gateway.yaml"),
		BackendBaseURL:    os.Getenv("CHECKIN_BACKEND_BASE_URL"),
		PrometheusURL:     os.Getenv("CHECKIN_PROMETHEUS_URL"),
	}

	switch cfg.StoreBackend {
	case StoreMemory, StoreSQLite:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	ttlMinutes, err := envInt("CHECKIN_SESSION_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.SessionTTL = time.Duration(ttlMinutes) * time.Minute

	if cfg.MaxModelCalls, err = envInt("CHECKIN_MAX_MODEL_CALLS", 6); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = envInt("CHECKIN_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.MaxStageHops, err = envInt("CHECKIN_MAX_STAGE_HOPS", 16); err != nil {
		return nil, err
	}

	// API keys follow secrets-file-then-env precedence; only the configured
	// model's provider key is required, enforced when the client is built.
	if key, err := GetSecret("OPENAI_API_KEY"); err == nil {
		cfg.OpenAIKey = key
	}
	if key, err := GetSecret("ANTHROPIC_API_KEY"); err == nil {
		cfg.AnthropicKey = key
	}

	cfg.Prompts, err = loadPrompts()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPrompts resolves the per-stage prompt set from CHECKIN_<STAGE>_* env
// vars. A stage left without system or continue prompts is a startup error:
// prompts are deployment configuration, not code. Setting
// CHECKIN_BUILTIN_PROMPTS=1 opts into the shipped sample set as the base
// layer; env vars still win over it.
func loadPrompts() (map[proto.Stage]StagePrompts, error) {
	useBuiltin := boolEnv("CHECKIN_BUILTIN_PROMPTS")

	prompts := make(map[proto.Stage]StagePrompts, len(proto.AllStages()))
	for _, stage := range proto.AllStages() {
		var p StagePrompts
		if useBuiltin {
			p = defaultPrompts[stage]
		}
		key := string(stage)
		if v := os.Getenv("CHECKIN_" + key + "_SYSTEM_PROMPT"); v != "" {
			p.System = v
		}
		if v := os.Getenv("CHECKIN_" + key + "_CONTINUE_PROMPT"); v != "" {
			p.Continue = v
		}
		if v := os.Getenv("CHECKIN_" + key + "_NOTES_TEMPLATE"); v != "" {
			p.NotesTemplate = v
		}
		if v := os.Getenv("CHECKIN_" + key + "_TOOL_CHOICE"); v != "" {
			p.ToolChoice = v
		}
		if p.System == "" {
			return nil, fmt.Errorf("stage %s has no system prompt: set CHECKIN_%s_SYSTEM_PROMPT (or CHECKIN_BUILTIN_PROMPTS=1 for the sample set)", stage, key)
		}
		if p.Continue == "" {
			return nil, fmt.Errorf("stage %s has no continue prompt: set CHECKIN_%s_CONTINUE_PROMPT (or CHECKIN_BUILTIN_PROMPTS=1 for the sample set)", stage, key)
		}
		if p.NotesTemplate == "" {
			p.NotesTemplate = defaultNotesTemplate
		}
		prompts[stage] = p
	}
	return prompts, nil
}

// StagePrompts returns the prompt set for one stage; absence is a programming
// error surfaced as an error rather than a silent default.
func (c *Config) StagePrompts(stage proto.Stage) (StagePrompts, error) {
	p, ok := c.Prompts[stage]
	if !ok {
		return StagePrompts{}, fmt.Errorf("no prompts configured for stage %s", stage)
	}
	return p, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	v := os.Getenv(key)
	return v == "1" || strings.EqualFold(v, "true")
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}
