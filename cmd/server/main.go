package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ducktype/ducktype/internal/bootstrap"
	"github.com/ducktype/ducktype/internal/config"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/httpapi"
	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/ducktype/ducktype/internal/logging"
	"github.com/ducktype/ducktype/internal/store/rabbitmq"
	"github.com/ducktype/ducktype/internal/store/redisstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal("open store", zap.String("kind", string(cfg.StoreKind())), zap.Error(err))
	}
	defer closeStore()
	convs := conversation.NewService(store)

	coach, reg := bootstrap.NewCoach(cfg, log)

	deps := httpapi.Deps{Conversations: convs, Coach: coach, Log: log}

	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(ctx); err != nil {
			log.Fatal("redis ping", zap.Error(err))
		}
		defer rds.Close()
		deps.Idempotency = rds

		if cfg.AsyncRepliesEnabled() {
			pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
			if err != nil {
				log.Fatal("rabbit publisher", zap.Error(err))
			}
			defer pub.Close()
			deps.Jobs = jobs.NewService(rds, pub, convs, log.Named("jobs"))
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(deps),
	}

	go func() {
		log.Info("server started",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", string(cfg.StoreKind())),
			zap.String("provider", cfg.GenerationProvider),
			zap.Strings("providers", reg.Names()),
			zap.Bool("async_replies", deps.Jobs != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
