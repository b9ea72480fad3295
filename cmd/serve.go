package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/neeroai/migue.ai-sub000/internal/agent"
	"github.com/neeroai/migue.ai-sub000/internal/budget"
	"github.com/neeroai/migue.ai-sub000/internal/channel/whatsapp"
	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/ingest"
	"github.com/neeroai/migue.ai-sub000/internal/modelrouter"
	"github.com/neeroai/migue.ai-sub000/internal/pipeline"
	"github.com/neeroai/migue.ai-sub000/internal/providers"
	"github.com/neeroai/migue.ai-sub000/internal/store"
	"github.com/neeroai/migue.ai-sub000/internal/store/memory"
	"github.com/neeroai/migue.ai-sub000/internal/store/sqldb"
	"github.com/neeroai/migue.ai-sub000/internal/telemetry"
	"github.com/neeroai/migue.ai-sub000/internal/tools"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and message pipeline",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	stores, closeStores, err := openStores(cfg)
	if err != nil {
		slog.Error("storage open failed", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	providerSet := registerProviders(cfg)
	if len(providerSet) == 0 {
		slog.Error("no provider API key configured; set MIGUE_ANTHROPIC_API_KEY or MIGUE_OPENAI_API_KEY")
		os.Exit(1)
	}

	sender := whatsapp.NewClient(cfg.WhatsApp)

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, stores, sender); err != nil {
		slog.Error("tool registration failed", "error", err)
		os.Exit(1)
	}

	allowlist := tools.NewAllowlist(cfg.Tools.AllowlistPath)
	engine := tools.NewEngine(registry, allowlist)

	ledger := budget.NewLedger(stores.Usage, cfg.Budget)
	maintenance := budget.NewMaintenance(stores.Usage, cfg.Budget.ResetCron, cfg.Budget.RetentionDays)

	executor := agent.NewExecutor(agent.ExecutorConfig{
		Providers: providerSet,
		Router:    modelrouter.NewRouter(nil),
		Ledger:    ledger,
		Engine:    engine,
		Registry:  registry,
		Stores:    stores,
		Agent:     cfg.Agent,
	})

	persister := ingest.NewPersister(stores)
	dispatcher := pipeline.NewDispatcher(stores.Messages, sender)
	pipe := pipeline.New(persister, executor, dispatcher, nil)

	runner := pipeline.NewRunner(cfg.Server.Workers, cfg.Server.QueueSize)
	runner.Start(ctx)

	limiter := ingest.NewSenderLimiter(cfg.Server.MinInterval())
	webhook := whatsapp.NewWebhook(cfg.WhatsApp, limiter, func(msg *store.NormalizedMessage, requestID string) bool {
		return runner.Enqueue("pipeline", func(jobCtx context.Context) {
			pipe.Process(jobCtx, msg, requestID)
		})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           otelhttp.NewHandler(webhook, "webhook"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("webhook server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		return maintenance.Run(gctx)
	})

	g.Go(func() error {
		if err := allowlist.Watch(gctx); err != nil {
			// Allowlist stays usable from the last successful load.
			slog.Warn("allowlist watch stopped", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited", "error", err)
	}

	// Finish jobs already accepted before the shutdown signal.
	runner.Wait()
	slog.Info("shutdown complete")
}

// openStores picks the backend from the DSN: empty falls back to the
// in-memory stores, anything else goes through the SQL layer.
func openStores(cfg *config.Config) (*store.Stores, func(), error) {
	if cfg.Database.DSN == "" {
		slog.Warn("MIGUE_DATABASE_DSN not set, using in-memory storage (data is lost on restart)")
		return memory.NewStores(), func() {}, nil
	}
	stores, db, err := sqldb.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return stores, func() { db.Close() }, nil
}

func registerProviders(cfg *config.Config) map[string]providers.Provider {
	set := make(map[string]providers.Provider)
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		var opts []providers.AnthropicOption
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		set["anthropic"] = providers.NewAnthropicProvider(key, opts...)
		slog.Info("provider registered", "provider", "anthropic")
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		var opts []providers.OpenAIOption
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, providers.WithOpenAIBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		set["openai"] = providers.NewOpenAIProvider(key, opts...)
		slog.Info("provider registered", "provider", "openai")
	}
	return set
}
