package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/gyaneshwarpardhi/tierflow/internal/api"
	"github.com/gyaneshwarpardhi/tierflow/internal/config"
	"github.com/gyaneshwarpardhi/tierflow/internal/engine"
	"github.com/gyaneshwarpardhi/tierflow/internal/notify"
	"github.com/gyaneshwarpardhi/tierflow/internal/store"
	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// .env is a development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		slog.Error("failed to parse environment", "err", err)
		os.Exit(1)
	}

	// ── Tier config ───────────────────────────────────────────────────────────
	loader, err := config.NewLoader(cfg.TierConfigPath)
	if err != nil {
		slog.Error("failed to load tier config", "path", cfg.TierConfigPath, "err", err)
		os.Exit(1)
	}
	tierCfg := loader.Config()
	if err := config.Validate(tierCfg); err != nil {
		slog.Error("tier config validation failed", "err", err)
		os.Exit(1)
	}
	registry, err := tier.NewRegistry(tierCfg.TierList())
	if err != nil {
		slog.Error("failed to build tier registry", "err", err)
		os.Exit(1)
	}
	slog.Info("tier registry built", "tiers", len(registry.All()))

	// ── Storage ───────────────────────────────────────────────────────────────
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()
	if err := db.PingContext(initCtx); err != nil {
		slog.Error("database unreachable", "err", err)
		os.Exit(1)
	}
	if err := store.InitSchema(initCtx, db); err != nil {
		slog.Error("failed to initialize schema", "err", err)
		os.Exit(1)
	}

	posts := store.NewPostgresPosts(db)
	members := store.NewPostgresMembers(db)
	mappings := store.NewPostgresMappings(db)
	templates := store.NewPostgresTemplates(db)

	if err := seedMappings(initCtx, mappings, registry); err != nil {
		slog.Error("failed to seed tier mappings", "err", err)
		os.Exit(1)
	}

	// ── Notifier + engine ─────────────────────────────────────────────────────
	notifier := notify.NewDiscord(notify.DiscordConfig{
		BaseURL:      cfg.DiscordBaseURL,
		Token:        cfg.DiscordToken,
		LogChannelID: cfg.LogChannelID,
		Mappings:     mappings,
		Templates:    templates,
		Logger:       logger,
	})

	eng := engine.New(engine.Config{
		Registry: registry,
		Posts:    posts,
		Members:  members,
		Notifier: notifier,
		Logger:   logger,
	})

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.TierConfig) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: tier config invalid", "err", err)
			return
		}
		newReg, err := tier.NewRegistry(newCfg.TierList())
		if err != nil {
			slog.Warn("hot-reload skipped: registry build failed", "err", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := seedMappings(ctx, mappings, newReg); err != nil {
			slog.Warn("hot-reload: mapping refresh failed", "err", err)
		}
		eng.SwapRegistry(newReg)
		slog.Info("tier registry hot-reloaded", "tiers", len(newReg.All()))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(api.Config{
		Engine:        eng,
		WebhookSecret: cfg.WebhookSecret,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		Logger:        logger,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	slog.Info("goodbye")
}

// seedMappings upserts one tier-to-channel mapping per configured tier so the
// notifier can resolve destinations without any admin interaction.
func seedMappings(ctx context.Context, mappings store.MappingStore, reg *tier.Registry) error {
	for _, t := range reg.All() {
		if t.ChannelID == "" {
			continue
		}
		err := mappings.Upsert(ctx, store.TierMapping{
			TierID:    t.ID,
			TierName:  t.Name,
			TierRank:  t.Rank,
			ChannelID: t.ChannelID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
