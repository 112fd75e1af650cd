// mindX - guided wellness companion server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/api"
	"github.com/ashureev/mindx/internal/assessment"
	"github.com/ashureev/mindx/internal/catalog"
	"github.com/ashureev/mindx/internal/chat"
	"github.com/ashureev/mindx/internal/config"
	"github.com/ashureev/mindx/internal/middleware"
	"github.com/ashureev/mindx/internal/pods"
	"github.com/ashureev/mindx/internal/session"
	"github.com/ashureev/mindx/internal/store"
	"github.com/ashureev/mindx/internal/tasks"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreEngine)

	repo, err := store.NewByEngine(cfg.StoreEngine, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	slog.Info("Store connected", "engine", cfg.StoreEngine, "path", cfg.DBPath)

	cat, err := catalog.Default()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	ledger, err := session.OpenLedger(ctx, repo, cfg.ProgressNamespace, logger)
	if err != nil {
		return fmt.Errorf("open progress ledger: %w", err)
	}

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		slog.Warn("Agent gateway unavailable, flows will use fallbacks", "error", err)
		gateway = agent.DisabledGateway{}
	}
	agents, err := agent.NewService(gateway, serviceConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("initialize agent service: %w", err)
	}
	defer agents.Close()
	slog.Info("Agent gateway ready", "transport", agents.Transport())

	convLog, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	username := func() string { return ledger.Current().Username }
	sess := session.New(session.Deps{
		Ledger:     ledger,
		Assessment: assessment.New(cat.Assessment),
		Chat: chat.NewRouter(chat.Config{
			Agents:    agents,
			ConvLog:   convLog,
			Logger:    logger,
			SessionID: uuid.NewString(),
			Username:  username,
		}),
		Tasks: tasks.NewFlow(tasks.Config{
			Agents:           agents,
			Progress:         ledger,
			Logger:           logger,
			AckDelay:         cfg.AckDelay,
			MaxEvidenceBytes: cfg.MaxEvidenceBytes,
		}),
		Pods: pods.NewRegistry(cat.Pods, pods.Config{
			Agents:   agents,
			ConvLog:  convLog,
			Logger:   logger,
			Username: username,
		}),
		Board:       session.NewBoard(cat.Challenges, ledger.Current().ActiveChallenges),
		Leaderboard: cat.Leaderboard,

		CelebrationDelay: cfg.CelebrationDelay,
		Logger:           logger,
	})
	defer sess.Close()
	slog.Info("Session ready", "screen", sess.Screen(), "namespace", cfg.ProgressNamespace)

	handler := api.NewHandler(api.Config{
		Session:          sess,
		Repo:             repo,
		Transport:        agents.Transport(),
		MaxEvidenceBytes: cfg.MaxEvidenceBytes,
		RateLimit:        cfg.RateLimit.RequestsPerWindow,
		RateWindow:       cfg.RateLimit.WindowDuration,
		OriginPatterns:   originPatterns(cfg),
		Logger:           logger,
	})
	defer handler.Close()

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	handler.RegisterRoutes(r)

	// Evidence uploads and agent calls can take a while; no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		handler.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// newGateway picks the transport: gRPC when an address is set, otherwise
// HTTP when a base URL is set, otherwise the disabled gateway.
func newGateway(cfg *config.Config, logger *slog.Logger) (agent.Gateway, error) {
	switch {
	case cfg.Agents.GrpcAddr != "":
		slog.Info("Connecting to agent gateway via gRPC", "address", cfg.Agents.GrpcAddr)
		c, err := agent.NewGrpcClient(agent.GrpcClientConfig{
			Address: cfg.Agents.GrpcAddr,
			APIKey:  cfg.Agents.APIKey,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case cfg.Agents.BaseURL != "":
		slog.Info("Using agent gateway over HTTP", "base_url", cfg.Agents.BaseURL)
		c, err := agent.NewHTTPClient(agent.HTTPClientConfig{
			BaseURL: cfg.Agents.BaseURL,
			APIKey:  cfg.Agents.APIKey,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		slog.Info("AI features disabled (AGENT_GRPC_ADDR and AGENT_BASE_URL not set)")
		return agent.DisabledGateway{}, nil
	}
}

func serviceConfig(cfg *config.Config) agent.ServiceConfig {
	return agent.ServiceConfig{
		AgentIDs: map[agent.Role]string{
			agent.RoleOrchestrator:     cfg.Agents.OrchestratorID,
			agent.RoleTaskRecommender:  cfg.Agents.RecommenderID,
			agent.RoleEvidenceVerifier: cfg.Agents.VerifierID,
			agent.RoleModerator:        cfg.Agents.ModeratorID,
		},
		Timeouts: map[agent.Role]time.Duration{
			agent.RoleOrchestrator:     cfg.Timeouts.Chat,
			agent.RoleTaskRecommender:  cfg.Timeouts.Recommend,
			agent.RoleEvidenceVerifier: cfg.Timeouts.Verify,
			agent.RoleModerator:        cfg.Timeouts.Moderation,
		},
		UploadTimeout: cfg.Timeouts.Upload,
	}
}

// originPatterns converts allowed origins into websocket host patterns.
func originPatterns(cfg *config.Config) []string {
	origins := cfg.AllowedOrigins()
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
