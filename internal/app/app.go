// Package app wires all vectorpress subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, accessors hand them to the front ends, and Shutdown tears
// everything down in reverse-init order.
//
// For testing, inject doubles via functional options (WithArticleStore,
// WithRegistry, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vectorpress/vectorpress/internal/agent"
	"github.com/vectorpress/vectorpress/internal/config"
	"github.com/vectorpress/vectorpress/internal/observe"
	"github.com/vectorpress/vectorpress/internal/tools"
	"github.com/vectorpress/vectorpress/pkg/provider/embeddings"
	"github.com/vectorpress/vectorpress/pkg/provider/llm"
	"github.com/vectorpress/vectorpress/pkg/store"
	"github.com/vectorpress/vectorpress/pkg/store/postgres"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	// LLM is the reasoning model driving the tool-calling loop. Required.
	LLM llm.Provider

	// Pruner condenses retrieved text before it enters the context window.
	// Optional; nil disables pruning.
	Pruner llm.Provider

	// Embeddings backs feed filtering and corpus search. Required when
	// feeds or the corpus tool are configured.
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes for the vectorpress news agent.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	articles store.ArticleStore
	registry *tools.Registry
	agent    *agent.Agent
	sessions *SessionManager

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArticleStore injects an article store instead of connecting to
// PostgreSQL from config.
func WithArticleStore(s store.ArticleStore) Option {
	return func(a *App) { a.articles = s }
}

// WithRegistry injects a pre-built tool registry instead of constructing the
// retrieval tools from config.
func WithRegistry(r *tools.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects a metrics bundle instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection, retrieval
// tool construction, pruner and agent assembly, and session management.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if providers == nil || providers.LLM == nil {
		return nil, fmt.Errorf("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	if err := a.initTools(); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	if err := a.initAgent(); err != nil {
		return nil, fmt.Errorf("app: init agent: %w", err)
	}

	a.sessions = NewSessionManager(a.agent, a.metrics, a.cfg.Agent.HistoryLimit)

	slog.Info("app initialised",
		"model", providers.LLM.ModelID(),
		"tools", a.registry.Names(),
		"parallel_tools", cfg.Agent.ParallelTools,
	)
	return a, nil
}

// initStore connects the pgvector article store when the corpus tool needs
// it and no store was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.articles != nil || !a.cfg.Tools.Corpus.Enabled {
		return nil
	}

	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		return fmt.Errorf("store.postgres_dsn is required when the corpus tool is enabled")
	}
	dims := a.cfg.Store.EmbeddingDimensions
	if dims == 0 {
		dims = 768 // nomic-embed-text
	}

	st, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.articles = st
	a.closers = append(a.closers, func() error {
		st.Close()
		return nil
	})
	return nil
}

// initTools builds the retrieval tool registry from config unless one was
// injected.
func (a *App) initTools() error {
	if a.registry != nil {
		return nil
	}
	reg, err := buildRegistry(a.cfg, a.providers, a.articles, a.metrics)
	if err != nil {
		return err
	}
	a.registry = reg
	return nil
}

// initAgent assembles the pruner and the conversation loop.
func (a *App) initAgent() error {
	agentOpts := []agent.Option{
		agent.WithMetrics(a.metrics),
		agent.WithParallelTools(a.cfg.Agent.ParallelTools),
	}
	if a.cfg.Agent.MaxRounds > 0 {
		agentOpts = append(agentOpts, agent.WithMaxRounds(a.cfg.Agent.MaxRounds))
	}
	if a.cfg.Agent.Temperature > 0 {
		agentOpts = append(agentOpts, agent.WithTemperature(a.cfg.Agent.Temperature))
	}
	if a.providers.Pruner != nil {
		agentOpts = append(agentOpts, agent.WithPruner(agent.NewPruner(a.providers.Pruner, a.metrics)))
	}

	ag, err := agent.New(a.providers.LLM, a.registry, agentOpts...)
	if err != nil {
		return err
	}
	a.agent = ag
	return nil
}

// Agent returns the conversation loop.
func (a *App) Agent() *agent.Agent { return a.agent }

// Sessions returns the session manager shared by the front ends.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Registry returns the tool registry.
func (a *App) Registry() *tools.Registry { return a.registry }

// ArticleStore returns the pgvector store, or nil when the corpus tool is
// disabled and no store was injected.
func (a *App) ArticleStore() store.ArticleStore { return a.articles }

// Metrics returns the metrics bundle.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
