// noshow-worker periodically cancels scheduled appointments whose slot ended
// more than the grace period ago, releasing their slots back into the pool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelinehq/clinic-queue/internal/config"
	"github.com/carelinehq/clinic-queue/internal/db"
	"github.com/carelinehq/clinic-queue/internal/notify"
	redisclient "github.com/carelinehq/clinic-queue/internal/redis"
	"github.com/carelinehq/clinic-queue/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "noshow-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("noshow-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	registry := scheduling.NewSlotRegistry(repo, cfg.WorkingDayStart, cfg.WorkingDayEnd, cfg.SlotDuration)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	counter := redisclient.NewQueueCounter(rdb, "")
	publisher := notify.NewRedisPublisher(rdb, "")

	scheduler := scheduling.NewScheduler(registry, repo, repo, publisher, counter, locker, log, cfg.NoShowGrace)

	// Run once at startup
	runOnce(rootCtx, scheduler, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping noshow-worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, scheduler, log)
		}
	}
}

func runOnce(ctx context.Context, scheduler *scheduling.Scheduler, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	cancelled, err := scheduler.SweepNoShows(runCtx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("no-show sweep error")
		return
	}
	log.Info().Int("cancelled", cancelled).Dur("took", time.Since(start)).Msg("no-show sweep complete")
}
