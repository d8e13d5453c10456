package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-auction/internal/auction"
	"ms-auction/internal/auction/api"
	"ms-auction/internal/auction/cache"
	auctionkafka "ms-auction/internal/auction/kafka"
	"ms-auction/internal/auction/ledger"
	"ms-auction/internal/auction/state"
	"ms-auction/internal/clock"
	"ms-auction/internal/config"
	"ms-auction/internal/database/migrations"
	"ms-auction/internal/logger"
	"ms-auction/internal/scheduler"
	"ms-auction/internal/settlement"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()
	ctx := context.Background()

	// --- PostgreSQL ---
	sqldb, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.Up(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("CACHE", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	// --- Kafka ---
	var events *auctionkafka.Producer
	if cfg.Kafka.Enabled {
		if err := auctionkafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		events = auctionkafka.NewProducer(cfg.Kafka, log)
		defer events.Close()
	} else {
		log.Warn("KAFKA", "Kafka disabled, auction events will not be published")
	}

	// --- Settlement ---
	settler, err := settlement.NewStripeSettler(log)
	if err != nil {
		log.Warn("SETTLEMENT", fmt.Sprintf("Stripe unavailable, sold auctions will be left settlement-pending: %v", err))
		settler = nil
	}

	// --- Core wiring ---
	ledgerStore := ledger.New(bunDB)
	stateStore := state.New(bunDB)
	statusCache := cache.NewStatusCache(redisClient, cfg.Redis.StatusCacheTTL, log)
	locks := auction.NewLockTable()
	clk := clock.System()

	var publisher auction.EventPublisher
	var sweepPublisher scheduler.EventPublisher
	if events != nil {
		publisher = events
		sweepPublisher = events
	}

	var engineSettler auction.Settler
	if settler != nil {
		engineSettler = settler
	}

	engine := auction.NewEngine(bunDB, ledgerStore, stateStore, publisher, statusCache, engineSettler, locks, clk, cfg.Engine, log)

	sweepGuard := cache.NewSweepGuard(redisClient, cfg.Scheduler.SweepLockTTL)
	lifecycle := scheduler.New(stateStore, locks, sweepPublisher, engineSettler, sweepGuard, statusCache, clk, cfg.Scheduler, log)

	schedCtx, stopScheduler := context.WithCancel(ctx)
	go lifecycle.Run(schedCtx)

	// --- HTTP ---
	handler := &api.Handler{
		Engine: engine,
		State:  stateStore,
		Ledger: ledgerStore,
		Logger: log,
	}

	r := chi.NewRouter()
	r.Use(api.RequestLogger(log))
	handler.Routes(r)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Auction service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received, cleaning up")

	stopScheduler()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	if err := redisClient.Close(); err != nil {
		log.Warn("CACHE", fmt.Sprintf("Redis close failed: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}
