package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: ollama
    model: qwen3:8b
    base_url: http://localhost:11434
  pruner:
    name: ollama
    model: qwen3:1.7b
  embeddings:
    name: ollama
    model: nomic-embed-text
tools:
  web_search:
    api_key: tvly-test
  archives:
    - name: guardian
      api_key: guardian-test
  feeds:
    - name: technology
      urls:
        - https://www.ft.com/technology?format=rss
      threshold: 0.7
    - name: sport
      urls:
        - https://feeds.bbci.co.uk/sport/rss.xml
        - https://sports.yahoo.com/rss/
      threshold: 0.5
  corpus:
    enabled: true
    top_k: 5
    threshold: 0.5
store:
  postgres_dsn: postgres://localhost:5432/vectorpress
  embedding_dimensions: 768
agent:
  parallel_tools: true
  history_limit: 40
  max_rounds: 8
  temperature: 0.2
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.LLM.Model != "qwen3:8b" {
		t.Errorf("llm model = %q", cfg.Providers.LLM.Model)
	}
	if len(cfg.Tools.Feeds) != 2 || cfg.Tools.Feeds[0].Threshold != 0.7 {
		t.Errorf("feeds = %+v", cfg.Tools.Feeds)
	}
	if !cfg.Agent.ParallelTools || cfg.Agent.HistoryLimit != 40 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
}

func TestLoadFromReaderRejectsUnknownField(t *testing.T) {
	yaml := `
providers:
  llm:
    name: ollama
    modell: typo
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{LogLevel: "loud"},
		Tools: ToolsConfig{
			Feeds: []FeedTopicConfig{
				{Name: "technology", Threshold: 1.5},
			},
		},
		Providers: ProvidersConfig{Embeddings: ProviderEntry{Name: "ollama"}},
		Agent:     AgentConfig{Temperature: 3},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	msg := err.Error()
	for _, want := range []string{
		"server.log_level",
		"providers.llm.name is required",
		"tools.feeds[0].urls",
		"tools.feeds[0].threshold",
		"agent.temperature",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidateCorpusNeedsStore(t *testing.T) {
	cfg := &Config{
		Providers: ProvidersConfig{
			LLM:        ProviderEntry{Name: "ollama", Model: "qwen3:8b"},
			Embeddings: ProviderEntry{Name: "ollama", Model: "nomic-embed-text"},
		},
		Tools: ToolsConfig{Corpus: CorpusConfig{Enabled: true}},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "store.postgres_dsn") {
		t.Errorf("err = %v, want store.postgres_dsn requirement", err)
	}
}

func TestValidateNeedsAtLeastOneTool(t *testing.T) {
	cfg := &Config{
		Providers: ProvidersConfig{LLM: ProviderEntry{Name: "ollama", Model: "qwen3:8b"}},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "no retrieval tools") {
		t.Errorf("err = %v, want no-tools error", err)
	}
}

func TestValidateDuplicateNames(t *testing.T) {
	cfg := &Config{
		Providers: ProvidersConfig{
			LLM:        ProviderEntry{Name: "ollama", Model: "qwen3:8b"},
			Embeddings: ProviderEntry{Name: "ollama", Model: "nomic-embed-text"},
		},
		Tools: ToolsConfig{
			Archives: []ArchiveConfig{
				{Name: "guardian", APIKey: "k"},
				{Name: "guardian", APIKey: "k"},
			},
			Feeds: []FeedTopicConfig{
				{Name: "technology", URLs: []string{"https://a"}, Threshold: 0.7},
				{Name: "technology", URLs: []string{"https://b"}, Threshold: 0.5},
			},
		},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("duplicates accepted")
	}
	if !strings.Contains(err.Error(), "tools.archives[1].name") {
		t.Errorf("archive duplicate not reported: %v", err)
	}
	if !strings.Contains(err.Error(), "tools.feeds[1].name") {
		t.Errorf("feed duplicate not reported: %v", err)
	}
}
