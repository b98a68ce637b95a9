package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Ollama     OllamaConfig
	OpenRouter OpenRouterConfig
	Storage    StorageConfig
	WeChat     WeChatConfig
	Extract    ExtractConfig
	Dedup      DedupConfig
	Batch      BatchConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type LLMConfig struct {
	Provider string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenRouterConfig struct {
	APIKey string
	Model  string
}

type StorageConfig struct {
	DataDir string
}

type WeChatConfig struct {
	DBDir string
}

type ExtractConfig struct {
	CategoriesFile string
	Timezone       string
}

type DedupConfig struct {
	SimilarityThreshold float64
}

type BatchConfig struct {
	LookbackHours   int
	CooldownSeconds int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		LLM: LLMConfig{
			Provider: "ollama",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen2.5:7b",
		},
		OpenRouter: OpenRouterConfig{
			Model: "deepseek/deepseek-chat",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.8,
		},
		Batch: BatchConfig{
			LookbackHours:   24,
			CooldownSeconds: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.wxtodo.app) and secrets
// fall back to macOS Keychain.
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/wxtodo/config.json
// and secrets live in $XDG_DATA_HOME/wxtodo/secrets.json.
//
// Environment variables (WXTODO_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenRouter.APIKey == "" {
		if key, err := kc.Get(keychainService, "openrouter_api_key"); err == nil && key != "" {
			cfg.OpenRouter.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "ollama":
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("missing required config: OpenRouter API key. "+
				"Set it via environment variable WXTODO_OPENROUTER_API_KEY%s", apiKeyHint())
		}
	default:
		return fmt.Errorf("invalid llm.provider %q (supported: ollama, openrouter)", c.LLM.Provider)
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1], got %v", c.Dedup.SimilarityThreshold)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the zone used to render message times. An empty
// extract.timezone selects the system zone.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Extract.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid extract.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Cooldown is the configured pause between chats in a batch.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Batch.CooldownSeconds) * time.Second
}
