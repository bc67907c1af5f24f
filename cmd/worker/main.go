package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/farmhub/auctionhub/internal/config"
	"github.com/farmhub/auctionhub/internal/db"
	"github.com/farmhub/auctionhub/internal/notifications"
	"github.com/farmhub/auctionhub/internal/observability"
	"github.com/farmhub/auctionhub/internal/queue/redisclient"
	"github.com/farmhub/auctionhub/internal/queue/worker"
	"github.com/farmhub/auctionhub/internal/repo/postgres"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	jobsRepo := postgres.NewJobsRepo(pool, prom)

	// mailer behind a circuit breaker so a dead mail provider does not burn
	// every attempt of every queued email
	mailer := notifications.NewProtectedMailer(
		notifications.NewLogMailer(),
		notifications.ProtectedMailerConfig{
			Timeout:          10 * time.Second,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	)

	var waker worker.Waker

	redisClient := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)

	if err := redisClient.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, polling only", "err", err)
		_ = redisClient.Close()
	} else {
		defer redisClient.Close()
		waker = redisClient
	}

	cancelPing()

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  time.Second,
		WorkerID:      workerID,
		Concurrency:   4,
		ShutdownGrace: 10 * time.Second,
	}, jobsRepo, mailer, waker, prom, log)

	// health endpoint on a side port
	healthSrv := &http.Server{
		Addr:              ":9091",
		Handler:           w.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("worker health server failed", "err", err)
		}
	}()

	log.Info("worker started", "worker_id", workerID)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = healthSrv.Shutdown(shutdownCtx)

	log.Info("worker shutdown complete")
}
