package main

import (
	"context"
	"github.com/joho/godotenv"
	"github.com/katoapp/agrimarket/internal/config"
	kafkax "github.com/katoapp/agrimarket/internal/kafka"
	"github.com/katoapp/agrimarket/internal/logger"
	"github.com/katoapp/agrimarket/internal/notify"
	"github.com/katoapp/agrimarket/internal/postgres"
	"github.com/katoapp/agrimarket/internal/redisx"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// notifier turns domain events into persisted user notifications.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-notifier"

	lg, err := logger.New(logger.Config{Level: cfg.Log.Level, Environment: cfg.Env, ServiceName: cfg.ServiceName})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, lg)
	if err != nil {
		lg.Fatal("db open", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := &notify.Handler{
		Writer: &postgres.Notifications{DB: db},
		Dedup:  &redisx.Dedup{RDB: rdb, Service: cfg.ServiceName},
		Log:    lg,
	}
	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group, cfg.Kafka.Topic, cfg.Kafka.Workers, lg.Named("consumer"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		lg.Info("consumer started",
			zap.String("group", cfg.Kafka.Group),
			zap.String("topic", cfg.Kafka.Topic),
			zap.Int("workers", cfg.Kafka.Workers),
		)
		if err := cons.Start(ctx, h.HandleMessage); err != nil {
			lg.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	lg.Info("shutting down consumer")
	cancel()
	<-done
}
