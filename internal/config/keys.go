package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "WXTODO_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.provider", typ: kString, env: "WXTODO_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "ollama.base_url", typ: kString, env: "WXTODO_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "WXTODO_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "openrouter.model", typ: kString, env: "WXTODO_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Model },
	},
	{
		key: "openrouter.api_key", typ: kString, env: "WXTODO_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "WXTODO_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "wechat.db_dir", typ: kString, env: "WXTODO_WECHAT_DB_DIR",
		apply:   func(cfg *Config, v any) { cfg.WeChat.DBDir = v.(string) },
		extract: func(cfg Config) any { return cfg.WeChat.DBDir },
	},
	{
		key: "extract.categories_file", typ: kString, env: "WXTODO_EXTRACT_CATEGORIES_FILE",
		apply:   func(cfg *Config, v any) { cfg.Extract.CategoriesFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Extract.CategoriesFile },
	},
	{
		key: "extract.timezone", typ: kString, env: "WXTODO_EXTRACT_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Extract.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Extract.Timezone },
	},
	{
		key: "dedup.similarity_threshold", typ: kFloat, env: "WXTODO_DEDUP_SIMILARITY_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Dedup.SimilarityThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Dedup.SimilarityThreshold },
	},
	{
		key: "batch.lookback_hours", typ: kInt, env: "WXTODO_BATCH_LOOKBACK_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Batch.LookbackHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.LookbackHours },
	},
	{
		key: "batch.cooldown_seconds", typ: kInt, env: "WXTODO_BATCH_COOLDOWN_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Batch.CooldownSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.CooldownSeconds },
	},
	{
		key: "log.level", typ: kString, env: "WXTODO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		var (
			v   any
			ok  bool
			err error
		)
		switch s.typ {
		case kString:
			v, ok, err = b.GetString(s.key)
		case kInt:
			v, ok, err = b.GetInt(s.key)
		case kFloat:
			v, ok, err = b.GetFloat(s.key)
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if s.env == "" || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			slog.Warn("ignoring malformed environment override", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}
