package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"voicelink/internal/bridge"
	"voicelink/internal/callkit"
	"voicelink/internal/config"
	"voicelink/internal/history"
	"voicelink/internal/httpapi"
	"voicelink/internal/orchestrator"
	"voicelink/internal/pushdec"
	"voicelink/internal/signaling"
	"voicelink/internal/tokens"
	"voicelink/pkg/logger"
	"voicelink/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Redis backs the token registration and the provider call cap.
	// Without it both fall back to in-process state.
	var tokenStore tokens.Store
	var capGuard callkit.CapGuard
	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		tokenStore, err = tokens.NewRedisStore(rdb, "voicelink")
		if err != nil {
			log.Error("token store init failed", "err", err)
			os.Exit(1)
		}
		capGuard = &callkit.RedisCap{
			RDB:   rdb,
			Key:   "voicelink:callcap",
			Limit: cfg.Provider.MaxConcurrentCalls,
			TTL:   cfg.Provider.CapTTL,
		}
	} else {
		tokenStore = tokens.NewMemoryStore()
	}

	// Postgres persists call history; without it records stay in memory.
	var historyRepo history.Repository
	if cfg.HasDB() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		historyRepo, err = history.NewPostgresRepo(db)
		if err != nil {
			log.Error("history repo init failed", "err", err)
			os.Exit(1)
		}
	} else {
		historyRepo = history.NewMemoryRepo()
	}

	sigClient, err := signaling.DialWS(rootCtx, signaling.WSClientConfig{
		URL:         cfg.Signaling.URL,
		AccessToken: cfg.Signaling.AccessToken,
	}, log)
	if err != nil {
		log.Error("signaling dial failed", "err", err)
		os.Exit(1)
	}
	defer sigClient.Close()

	decoder, err := pushdec.New(cfg.Push.Secret)
	if err != nil {
		log.Error("push decoder init failed", "err", err)
		os.Exit(1)
	}

	provider := callkit.NewMemoryProvider(capGuard)
	hub := bridge.NewHub(log)
	historySvc := history.NewService(historyRepo)

	orch := orchestrator.New(
		log,
		orchestrator.Config{HoldingTimeout: cfg.Push.HoldingTimeout},
		sigClient,
		callkit.NewAdapter(provider, log),
		hub,
		decoder,
		tokenStore,
		historySvc,
	)

	// Relay simulated system-UI gestures into the orchestrator.
	go func() {
		for a := range provider.Actions() {
			orch.HandleProviderAction(rootCtx, a)
		}
	}()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := &httpapi.Handlers{
		Orch:     orch,
		History:  historySvc,
		Provider: provider,
	}
	registerRoutes(r, h, hub)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("voicelinkd listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
