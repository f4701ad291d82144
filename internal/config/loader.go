package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEmbeddingProviders lists the known embedding provider names. Used by
// [Validate] to warn about unrecognised names.
var ValidEmbeddingProviders = []string{"openai", "ollama"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-value fields that have built-in defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = MemoryInProcess
	}
	if cfg.Memory.EmbeddingDimensions == 0 {
		cfg.Memory.EmbeddingDimensions = 1536
	}
	if cfg.Conversations.Path == "" {
		cfg.Conversations.Path = "data/conversations.db"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("providers.openai.api_key is required when the openai block is present"))
	}
	if cfg.Providers.Gemini != nil && cfg.Providers.Gemini.APIKey == "" {
		errs = append(errs, errors.New("providers.gemini.api_key is required when the gemini block is present"))
	}
	if cfg.Providers.VertexAI != nil && cfg.Providers.VertexAI.Project == "" {
		errs = append(errs, errors.New("providers.vertexai.project is required when the vertexai block is present"))
	}

	if emb := cfg.Providers.Embeddings; emb != nil {
		if emb.Name == "" {
			errs = append(errs, errors.New("providers.embeddings.name is required when the embeddings block is present"))
		} else if !slices.Contains(ValidEmbeddingProviders, emb.Name) {
			slog.Warn("unknown embeddings provider name — may be a typo",
				"name", emb.Name,
				"known", ValidEmbeddingProviders,
			)
		}
		if emb.Name == "openai" && emb.APIKey == "" {
			errs = append(errs, errors.New("providers.embeddings.api_key is required for the openai embeddings provider"))
		}
	}

	if !cfg.Memory.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("memory.backend %q is invalid; valid values: postgres, inprocess", cfg.Memory.Backend))
	}
	if cfg.Memory.Backend == MemoryPostgres && cfg.Memory.PostgresDSN == "" {
		errs = append(errs, errors.New("memory.postgres_dsn is required for the postgres backend"))
	}
	if cfg.Memory.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("memory.embedding_dimensions %d must be positive", cfg.Memory.EmbeddingDimensions))
	}

	if cfg.Providers.Embeddings == nil {
		slog.Warn("providers.embeddings is not configured; memory retrieval will be unavailable")
	}

	if cfg.Chat.TokenBudget < 0 {
		errs = append(errs, fmt.Errorf("chat.token_budget %d must not be negative", cfg.Chat.TokenBudget))
	}
	if cfg.Chat.PerMemoryCost < 0 {
		errs = append(errs, fmt.Errorf("chat.per_memory_cost %d must not be negative", cfg.Chat.PerMemoryCost))
	}
	if cfg.Chat.DefaultImportance < 0 || cfg.Chat.DefaultImportance > 10 {
		errs = append(errs, fmt.Errorf("chat.default_importance %d is out of range [0, 10]", cfg.Chat.DefaultImportance))
	}

	return errors.Join(errs...)
}
