// Command vectorpress is the news agent front end: an interactive terminal
// chat by default, or the web chat server with -serve.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vectorpress/vectorpress/internal/agent"
	"github.com/vectorpress/vectorpress/internal/app"
	"github.com/vectorpress/vectorpress/internal/config"
	"github.com/vectorpress/vectorpress/internal/health"
	"github.com/vectorpress/vectorpress/internal/observe"
	"github.com/vectorpress/vectorpress/internal/web"
)

// sweepInterval is how often idle web sessions are checked for eviction.
const sweepInterval = 5 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serve := flag.Bool("serve", false, "run the web chat server instead of the terminal chat")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vectorpress: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vectorpress: %v\n", err)
		}
		return 1
	}

	logger, level := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("vectorpress starting",
		"config", *configPath,
		"serve", *serve,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics provider (Prometheus exporter behind the OTel SDK).
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if *serve {
		return runServer(ctx, *configPath, cfg, providers, application, level)
	}
	return runTerminal(ctx, application)
}

// buildProviders instantiates the configured model backends via the default
// provider registry.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	reg := config.DefaultRegistry()
	ps := &app.Providers{}

	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = llmProvider
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if name := cfg.Providers.Pruner.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.Pruner)
		if err != nil {
			return nil, fmt.Errorf("create pruner provider %q: %w", name, err)
		}
		ps.Pruner = p
		slog.Info("provider created", "kind", "pruner", "name", name, "model", cfg.Providers.Pruner.Model)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	return ps, nil
}

// runTerminal drives the interactive chat loop on stdin/stdout. "reset"
// clears the conversation, "exit" quits.
func runTerminal(ctx context.Context, application *app.App) int {
	sessions := application.Sessions()
	const sessionID = "terminal"

	fmt.Println("vectorpress news agent — type your question, 'reset' to clear, 'exit' to quit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return 0
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("bye")
			return 0
		case "reset":
			sessions.Reset(sessionID)
			fmt.Println("conversation cleared")
			continue
		}

		reply, err := sessions.Advance(ctx, sessionID, line)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println()
				return 0
			}
			var modelErr *agent.ModelInvocationError
			if errors.As(err, &modelErr) {
				fmt.Println("the model backend is unavailable — check the provider configuration")
			} else {
				fmt.Printf("error: %v\n", err)
			}
			continue
		}
		fmt.Println(reply)
	}
}

// runServer starts the web front end and blocks until the signal context is
// cancelled. The config file is watched so log-level changes apply without a
// restart.
func runServer(ctx context.Context, configPath string, cfg *config.Config, providers *app.Providers, application *app.App, level *slog.LevelVar) int {
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	var checkers []health.Checker
	if pinger, ok := application.ArticleStore().(health.Pinger); ok {
		checkers = append(checkers, health.DatabaseChecker(pinger))
	}
	if providers.Embeddings != nil {
		checkers = append(checkers, health.EmbeddingsChecker(providers.Embeddings))
	}

	server := web.New(addr, application.Sessions(), health.New(checkers...), application.Metrics())
	application.Sessions().StartSweeper(ctx, sweepInterval)

	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.FeedsChanged {
			slog.Warn("feed configuration changed on disk — restart to apply", "changes", len(diff.FeedChanges))
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
		return 0
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "err", err)
		return 1
	}
	return 0
}

// newLogger builds the process logger with a runtime-adjustable level.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
