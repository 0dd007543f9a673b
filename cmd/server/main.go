package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fastbreaklabs/leaguesync/internal/auth"
	"github.com/fastbreaklabs/leaguesync/internal/config"
	"github.com/fastbreaklabs/leaguesync/internal/feed"
	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/httpapi"
	"github.com/fastbreaklabs/leaguesync/internal/hub"
	"github.com/fastbreaklabs/leaguesync/internal/registry"
	"github.com/fastbreaklabs/leaguesync/internal/room"
	"github.com/fastbreaklabs/leaguesync/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counters := &health.Counters{}
	reg := registry.New(logger)
	h := hub.NewHub(ctx, room.Options{
		MaxConnections:   cfg.MaxRoomConnections,
		HistoryLimit:     cfg.HistoryLimit,
		ConflictLimit:    cfg.ConflictLimit,
		OfflineLimit:     cfg.OfflineQueueLimit,
		OfflineRetention: cfg.OfflineRetention,
		ConflictWindow:   cfg.ConflictWindow,
	}, counters, logger)
	monitor := health.NewMonitor(reg, counters, cfg.HeartbeatInterval, cfg.MetricsInterval, logger)

	handler := httpapi.SetupRoutes(h, monitor, ws.Deps{
		Hub:        h,
		Registry:   reg,
		Verifier:   auth.ForSecret(cfg.AuthSecret),
		Counters:   counters,
		OutboxSize: cfg.OutboxSize,
		Logger:     logger,
	})
	server := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})

	if cfg.FeedURL != "" {
		consumer := feed.NewConsumer(cfg.FeedURL, cfg.FeedBaseDelay, cfg.FeedMaxDelay, h, logger)
		g.Go(func() error {
			consumer.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		h.Inbox() <- hub.ShutdownHub{}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
