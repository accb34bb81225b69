package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ducktype/ducktype/internal/bootstrap"
	"github.com/ducktype/ducktype/internal/config"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/jobs"
	"github.com/ducktype/ducktype/internal/logging"
	"github.com/ducktype/ducktype/internal/store/rabbitmq"
	"github.com/ducktype/ducktype/internal/store/redisstore"
	amqp "github.com/rabbitmq/amqp091-go"
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

	if !cfg.AsyncRepliesEnabled() {
		log.Fatal("worker needs REDIS_ADDR and RABBIT_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(ctx); err != nil {
		log.Fatal("redis ping", zap.Error(err))
	}
	defer rds.Close()

	coach, _ := bootstrap.NewCoach(cfg, log)
	// the worker never publishes, so the service gets no publisher
	svc := jobs.NewService(rds, nil, conversation.NewService(store), log.Named("jobs"))
	runner := jobs.NewRunner(svc, coach, log.Named("runner"))

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	retries, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit retry publisher", zap.Error(err))
	}
	defer retries.Close()

	handler := &deliveryHandler{runner: runner, retries: retries, timeout: cfg.JobTimeout}

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	deliveries := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(zap.Int("worker", workerID))
			for d := range deliveries {
				handler.handle(ctx, wlog, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(deliveries)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				close(deliveries)
				wg.Wait()
				return
			}
			deliveries <- d
		}
	}
}
