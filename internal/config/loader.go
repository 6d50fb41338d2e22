package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.Pruner.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for _, fb := range cfg.Providers.LLM.Fallbacks {
		validateProviderName("llm", fb.Name)
		if fb.Name == "" {
			errs = append(errs, errors.New("providers.llm.fallbacks entries need a name"))
		}
	}
	for _, fb := range cfg.Providers.Embeddings.Fallbacks {
		validateProviderName("embeddings", fb.Name)
		if fb.Name == "" {
			errs = append(errs, errors.New("providers.embeddings.fallbacks entries need a name"))
		}
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}

	// Archives
	archiveNamesSeen := make(map[string]int, len(cfg.Tools.Archives))
	for i, archive := range cfg.Tools.Archives {
		prefix := fmt.Sprintf("tools.archives[%d]", i)
		if archive.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := archiveNamesSeen[archive.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.archives[%d]", prefix, archive.Name, prev))
			}
			archiveNamesSeen[archive.Name] = i
		}
		if archive.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required", prefix))
		}
	}

	// Feeds
	feedNamesSeen := make(map[string]int, len(cfg.Tools.Feeds))
	for i, feed := range cfg.Tools.Feeds {
		prefix := fmt.Sprintf("tools.feeds[%d]", i)
		if feed.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := feedNamesSeen[feed.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.feeds[%d]", prefix, feed.Name, prev))
			}
			feedNamesSeen[feed.Name] = i
		}
		if len(feed.URLs) == 0 {
			errs = append(errs, fmt.Errorf("%s.urls must list at least one feed", prefix))
		}
		if feed.Threshold <= 0 || feed.Threshold > 1 {
			errs = append(errs, fmt.Errorf("%s.threshold %.2f is out of range (0, 1]", prefix, feed.Threshold))
		}
	}

	// Feeds and corpus both need an embeddings provider.
	if cfg.Providers.Embeddings.Name == "" {
		if len(cfg.Tools.Feeds) > 0 {
			errs = append(errs, errors.New("tools.feeds requires providers.embeddings"))
		}
		if cfg.Tools.Corpus.Enabled {
			errs = append(errs, errors.New("tools.corpus requires providers.embeddings"))
		}
	}

	// Corpus / store coherence.
	if cfg.Tools.Corpus.Enabled && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("tools.corpus.enabled requires store.postgres_dsn"))
	}
	if cfg.Tools.Corpus.Threshold < 0 || cfg.Tools.Corpus.Threshold > 1 {
		errs = append(errs, fmt.Errorf("tools.corpus.threshold %.2f is out of range [0, 1]", cfg.Tools.Corpus.Threshold))
	}
	if cfg.Tools.Corpus.TopK < 0 {
		errs = append(errs, fmt.Errorf("tools.corpus.top_k %d must not be negative", cfg.Tools.Corpus.TopK))
	}
	if cfg.Store.PostgresDSN != "" && cfg.Store.EmbeddingDimensions <= 0 {
		slog.Warn("store.postgres_dsn is set but store.embedding_dimensions is not; the store will probe the embeddings provider")
	}

	// Agent
	if cfg.Agent.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("agent.history_limit %d must not be negative", cfg.Agent.HistoryLimit))
	}
	if cfg.Agent.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("agent.max_rounds %d must not be negative", cfg.Agent.MaxRounds))
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", cfg.Agent.Temperature))
	}

	// At least one retrieval tool must exist, otherwise the agent has
	// nothing to call.
	if cfg.Tools.WebSearch.APIKey == "" && len(cfg.Tools.Archives) == 0 &&
		len(cfg.Tools.Feeds) == 0 && !cfg.Tools.Corpus.Enabled {
		errs = append(errs, errors.New("no retrieval tools configured; enable at least one of tools.web_search, tools.archives, tools.feeds, tools.corpus"))
	}

	return errors.Join(errs...)
}

// unmarshalStrict decodes YAML with unknown-field rejection, without
// validation. The watcher validates separately so it can keep the previous
// config on failure.
func unmarshalStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// validateProviderName warns when name is not in the known list for kind.
// Unknown names are not errors: new backends appear faster than this list is
// updated.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if valid, ok := ValidProviderNames[kind]; ok && !slices.Contains(valid, name) {
		slog.Warn("unrecognised provider name", "kind", kind, "name", name, "known", valid)
	}
}
