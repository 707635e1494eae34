// Ensemble server — multi-agent query orchestration with knowledge
// retrieval, realtime progress streaming, and an HTTP/WebSocket API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ensembleworks/ensemble/pkg/agents"
	"github.com/ensembleworks/ensemble/pkg/api"
	"github.com/ensembleworks/ensemble/pkg/cleanup"
	"github.com/ensembleworks/ensemble/pkg/config"
	"github.com/ensembleworks/ensemble/pkg/coordinator"
	"github.com/ensembleworks/ensemble/pkg/database"
	"github.com/ensembleworks/ensemble/pkg/knowledge"
	"github.com/ensembleworks/ensemble/pkg/llm"
	"github.com/ensembleworks/ensemble/pkg/memory"
	"github.com/ensembleworks/ensemble/pkg/metrics"
	"github.com/ensembleworks/ensemble/pkg/models"
	"github.com/ensembleworks/ensemble/pkg/realtime"
	"github.com/ensembleworks/ensemble/pkg/router"
	"github.com/ensembleworks/ensemble/pkg/storage"
	"github.com/ensembleworks/ensemble/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	slog.Info("Starting ensemble",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Optional Postgres persistence. A configured URL (or DB_HOST in the
	// environment) enables it; otherwise everything runs in-memory.
	var dbClient *database.Client
	var dbHealth api.HealthChecker
	agentStore := agents.Store(agents.NewMemoryStore())
	metricsOpts := []metrics.Option{}

	if cfg.System.Database.URL != "" || os.Getenv("DB_HOST") != "" {
		dbCfg, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbCfg.URL = cfg.System.Database.URL
		if cfg.System.Database.MaxOpenConns > 0 {
			dbCfg.MaxConns = int32(cfg.System.Database.MaxOpenConns)
		}

		dbClient, err = database.NewClient(ctx, dbCfg)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbClient.Close()

		agentStore = storage.NewPostgresAgentStore(dbClient.Pool())
		metricsOpts = append(metricsOpts, metrics.WithSink(storage.NewPostgresSink(dbClient.Pool())))
		dbHealth = func(ctx context.Context) (any, error) {
			return database.Health(ctx, dbClient.Pool())
		}
		slog.Info("Connected to PostgreSQL database")
	} else {
		slog.Info("Running without Postgres, state is in-memory only")
	}

	// 3. Core state: conversation memory, metrics, agent registry.
	mem := memory.New()
	metricsStore := metrics.NewStore(metricsOpts...)
	defer metricsStore.Close()

	registry := agents.NewRegistry(agentStore)
	if err := seedAgents(ctx, registry, cfg); err != nil {
		slog.Error("Failed to seed agent registry", "error", err)
		os.Exit(1)
	}

	// 4. Knowledge retrieval: vector search + web scraping.
	retriever, err := buildRetriever(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize knowledge retrieval", "error", err)
		os.Exit(1)
	}

	// 5. Capability pool with one invoker per configured tier.
	pool := llm.NewPool()
	for _, tier := range cfg.CapabilityRegistry.Tiers() {
		capability, err := cfg.GetCapability(tier)
		if err != nil {
			slog.Error("Failed to resolve capability", "tier", tier, "error", err)
			os.Exit(1)
		}
		invoker := llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL: capability.BaseURL,
			APIKey:  capability.APIKey,
		})
		err = pool.Register(llm.CapabilityConfig{
			Tier:         models.CapabilityTier(tier),
			ModelID:      capability.ModelID,
			Temperature:  capability.Temperature,
			MaxTokens:    capability.MaxTokens,
			CostPerToken: capability.CostPerToken,
		}, invoker)
		if err != nil {
			slog.Error("Failed to register capability", "tier", tier, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Capability pool ready", "tiers", cfg.CapabilityRegistry.Tiers())

	// Applied insights feed back into capability selection: when an insight
	// is marked applied (POST /api/v1/insights/:id/status), the pool shifts
	// its selection weights accordingly.
	metricsStore.OnInsight(func(ins models.LearningInsight) {
		if ins.Status != models.InsightApplied {
			return
		}
		if pool.ApplyInsight(ins) {
			slog.Info("Applied insight to capability selection",
				"insight_id", ins.ID, "type", ins.Type)
		}
	})

	// 6. Realtime tracker with its heartbeat/GC loop.
	trackerOpts := []realtime.Option{}
	if cfg.System.Realtime.Retention > 0 {
		trackerOpts = append(trackerOpts, realtime.WithRetention(cfg.System.Realtime.Retention))
	}
	tracker := realtime.NewTracker(trackerOpts...)
	go tracker.Run(ctx)

	// 7. Router and coordinator.
	route := router.New(registry, router.Config{
		DefaultAgentName: cfg.System.Router.DefaultAgent,
		OrchestratorName: cfg.System.Router.OrchestratorAgent,
		TopK:             cfg.System.Router.TopK,
	})

	coord := coordinator.New(coordinator.Dependencies{
		Memory:    mem,
		Metrics:   metricsStore,
		Retriever: retriever,
		Pool:      pool,
		Router:    route,
		Tracker:   tracker,
	}, coordinator.Budgets{
		ExecutionTimeout:  cfg.System.Coordinator.ExecutionTimeout,
		AgentTimeout:      cfg.System.Coordinator.AgentTimeout,
		MaxTokens:         cfg.System.Coordinator.MaxTokens,
		MaxParallelAgents: cfg.System.Coordinator.MaxParallelAgents,
		CancelTimeout:     cfg.System.Coordinator.CancelTimeout,
	}, coordinator.WithLLMSynthesis(cfg.System.Coordinator.SynthesizeWithLLM))

	// 8. Retention loop for idle conversations.
	cleaner := cleanup.NewService(mem,
		cfg.System.Retention.SessionTTL,
		cfg.System.Retention.CleanupInterval)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// 9. HTTP/WebSocket server; Run blocks until the signal context ends.
	server := api.NewServer(api.Config{
		Host:             cfg.System.Server.Host,
		Port:             cfg.System.Server.Port,
		AllowedWSOrigins: cfg.System.Server.AllowedWSOrigins,
	}, api.Dependencies{
		Coordinator:    coord,
		Memory:         mem,
		Metrics:        metricsStore,
		Registry:       registry,
		Tracker:        tracker,
		Retriever:      retriever,
		DatabaseHealth: dbHealth,
	})

	stats := cfg.Stats()
	slog.Info("Ensemble started",
		"agents", stats.Agents,
		"capabilities", stats.Capabilities)

	if err := server.Run(ctx); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

// seedAgents upserts every configured agent definition into the registry
// store, preserving rolling performance stats for agents that already exist.
func seedAgents(ctx context.Context, registry *agents.Registry, cfg *config.Config) error {
	for _, name := range cfg.AgentRegistry.Names() {
		agentCfg, err := cfg.GetAgent(name)
		if err != nil {
			return err
		}
		agent := models.Agent{
			ID:                  "agent-" + name,
			Name:                name,
			Role:                agentCfg.Role,
			Goal:                agentCfg.Goal,
			Backstory:           agentCfg.Backstory,
			Keywords:            agentCfg.Keywords,
			Domain:              agentCfg.Domain,
			PreferredTier:       models.CapabilityTier(agentCfg.PreferredTier),
			Tools:               agentCfg.Tools,
			SpecializationScore: agentCfg.SpecializationScore,
			CollaborationScore:  agentCfg.CollaborationScore,
			IsActive:            true,
			Avatar:              agentCfg.Avatar,
			Color:               agentCfg.Color,
		}

		if existing, err := registry.ByID(ctx, agent.ID); err == nil {
			agent.Performance = existing.Performance
			if _, err := registry.Update(ctx, agent); err != nil {
				return err
			}
			continue
		}
		if _, err := registry.Create(ctx, agent); err != nil {
			return err
		}
	}
	return registry.Refresh(ctx)
}

// buildRetriever wires vector search (remote qdrant when configured, the
// in-process store otherwise) and the caching web scraper.
func buildRetriever(ctx context.Context, cfg *config.Config) (*knowledge.Retriever, error) {
	embedder := knowledge.NewHashEmbedder()

	var searcher knowledge.VectorSearcher
	var err error
	if q := cfg.System.Knowledge.Qdrant; q != nil {
		searcher, err = knowledge.NewQdrantSearcher(ctx, knowledge.QdrantConfig{
			Host:       q.Host,
			Port:       q.Port,
			APIKey:     q.APIKey,
			UseTLS:     q.UseTLS,
			Collection: q.Collection,
		}, embedder)
		if err != nil {
			return nil, err
		}
		slog.Info("Using qdrant vector search", "host", q.Host)
	} else {
		searcher, err = knowledge.NewChromemSearcher(embedder)
		if err != nil {
			return nil, err
		}
		slog.Info("Using in-process vector search")
	}

	scraper := knowledge.NewHTTPScraper(knowledge.HTTPScraperConfig{
		AllowedDomains: cfg.System.Knowledge.AllowedDomains,
		CacheTTL:       cfg.System.Knowledge.ScrapeCacheTTL,
		Timeout:        15 * time.Second,
	})

	return knowledge.NewRetriever(searcher, scraper, knowledge.Config{
		CrawlURLs: cfg.System.Knowledge.CrawlURLs,
	}), nil
}
