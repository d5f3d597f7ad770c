package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/app"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/llm"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/config"
	infrallm "github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/llm"
	_ "github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/llm/openai"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/memory"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/persistence"
	infratool "github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/tool"
	httpiface "github.com/Reynold-degenracy/EverMemoryArchive/internal/interfaces/http"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/infrastructure/embedding"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/infrastructure/sandbox"
	ngologger "github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/logger"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/infra/telegram"
)

const (
	appName    = "ema-gateway"
	appVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "EverMemoryArchive — conversational actor gateway",
		Version: appVersion,
		RunE:    runServe,
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := ngologger.New(ngologger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting gateway", zap.String("name", appName), zap.String("version", appVersion))

	db, err := persistence.NewDBConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	actors := persistence.NewGormActorDB(db)
	short := persistence.NewGormShortTermMemoryDB(db)

	router := buildLLMRouter(cfg, log)

	toolsFactory, closeMemory := buildToolsFactory(cfg, log)
	defer closeMemory()

	template := app.WorkerTemplate{
		SystemPromptTemplate: cfg.Actor.SystemPromptTemplate,
		MaxSteps:             cfg.Actor.MaxSteps,
		TokenLimit:           cfg.Actor.TokenLimit,
		BufferWindow:         cfg.Actor.BufferWindow,
	}
	pool := app.NewPool(template, router, toolsFactory, short, actors, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := httpiface.NewServer(httpiface.Config{Host: cfg.Gateway.Host, Port: cfg.Gateway.Port, Mode: cfg.Gateway.Mode}, pool, log)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	var tgAdapter *telegram.Adapter
	if cfg.Telegram.BotToken != "" {
		tgAdapter, err = telegram.NewAdapter(telegram.Config{BotToken: cfg.Telegram.BotToken, AllowedUserIDs: cfg.Telegram.AllowIDs}, pool, log)
		if err != nil {
			log.Error("failed to start Telegram adapter, continuing without it", zap.Error(err))
		} else if err := tgAdapter.Start(ctx); err != nil {
			log.Error("failed to start Telegram polling, continuing without it", zap.Error(err))
			tgAdapter = nil
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	if tgAdapter != nil {
		tgAdapter.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("error during HTTP shutdown", zap.Error(err))
	}

	log.Info("gateway stopped")
	return nil
}

// buildLLMRouter wires every configured provider behind the circuit-breaker
// router, so Submit always calls into a single corellm.Client.
func buildLLMRouter(cfg *config.Config, log *zap.Logger) llm.Client {
	routerConfigs := make([]infrallm.RouterConfig, 0, len(cfg.LLM.Providers))
	for _, p := range cfg.LLM.Providers {
		routerConfigs = append(routerConfigs, infrallm.RouterConfig{
			Kind: p.Type,
			Provider: infrallm.ProviderConfig{
				Name:     p.Name,
				BaseURL:  p.BaseURL,
				APIKey:   p.APIKey,
				Model:    p.Model,
				Priority: p.Priority,
			},
		})
	}
	return infrallm.NewRouter(routerConfigs, cfg.LLM.MaxRetries, cfg.LLM.RetryBaseWait, cfg.LLM.CircuitFailures, cfg.LLM.CircuitRecoverWait, log)
}

// buildToolsFactory assembles the tool set every actor gets: a shared shell
// tool and the canonical reply tool, plus per-actor memory recall/save
// tools when long-term memory is enabled. The returned closer releases the
// LanceDB connection on shutdown.
func buildToolsFactory(cfg *config.Config, log *zap.Logger) (app.ToolsFactory, func()) {
	sb, err := sandbox.NewProcessSandbox(sandbox.DefaultConfig(), log)
	if err != nil {
		log.Fatal("failed to initialize sandbox", zap.Error(err))
	}
	shellTool := infratool.NewShellTool(sb, log)

	var (
		longTermDB  *memory.LanceDBStore
		embedder    *embedding.OllamaEmbedder
		memoryReady bool
	)
	if cfg.Memory.Enabled && cfg.Memory.StoreType == "lancedb" {
		store, err := memory.NewLanceDBStore(cfg.Memory.StorePath, 768, log)
		if err != nil {
			log.Error("failed to open LanceDB store, disabling long-term memory", zap.Error(err))
		} else {
			emb, err := embedding.NewOllamaEmbedder(cfg.Memory.OllamaURL, cfg.Memory.EmbedModel, log)
			if err != nil {
				log.Error("failed to initialize embedder, disabling long-term memory", zap.Error(err))
				store.Close()
			} else {
				longTermDB, embedder, memoryReady = store, emb, true
			}
		}
	}

	factory := func(actorID string) tool.Registry {
		registry := tool.NewInMemoryRegistry()
		_ = registry.Register(shellTool)
		_ = registry.Register(infratool.NewReplyTool())
		if memoryReady {
			_ = registry.Register(infratool.NewMemorySaveTool(actorID, longTermDB, embedder, log))
			_ = registry.Register(infratool.NewMemoryRecallTool(actorID, longTermDB, embedder, log))
		}
		return registry
	}

	closer := func() {
		if longTermDB != nil {
			longTermDB.Close()
		}
	}
	return factory, closer
}
