package main

import (
	"context"
	"errors"
	"github.com/joho/godotenv"
	"github.com/katoapp/agrimarket/internal/config"
	"github.com/katoapp/agrimarket/internal/httpx"
	kafkax "github.com/katoapp/agrimarket/internal/kafka"
	"github.com/katoapp/agrimarket/internal/logger"
	"github.com/katoapp/agrimarket/internal/postgres"
	"github.com/katoapp/agrimarket/internal/redisx"
	"github.com/katoapp/agrimarket/internal/service"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	lg, err := logger.New(logger.Config{Level: cfg.Log.Level, Environment: cfg.Env, ServiceName: cfg.ServiceName})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, lg)
	if err != nil {
		lg.Fatal("db open", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, 1024, lg.Named("producer"))
	prod.Start(ctx)

	svc := service.New(service.Deps{
		DB:       &postgres.Runner{DB: db},
		Events:   &kafkax.Sink{P: prod},
		Log:      lg,
		Producer: cfg.ServiceName,
	}, &postgres.Stats{DB: db})

	cache := &redisx.StatusCache{RDB: rdb}
	router := httpx.NewRouter(httpx.RouterOptions{Service: cfg.ServiceName, Timeout: cfg.HTTP.RequestTimeout, Log: lg})
	httpx.Mount(router, cfg.JWT.Secret,
		&httpx.OrdersHandler{Svc: svc.Orders, Idem: &redisx.Idempotency{RDB: rdb}, Cache: cache},
		&httpx.ProductionHandler{Svc: svc.Production, Cache: cache},
		&httpx.InventoryHandler{Svc: svc.Inventory},
		&httpx.StatsHandler{Svc: svc.Stats},
	)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		lg.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	prod.Close() // flush queued events, then close the writer
	prod.WaitClosed()
}
