package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/config"
	"campusattend/internal/logger"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/session"
	"campusattend/internal/store"
)

// Worker consumes attendance events to keep live per-session counters in
// redis for staff monitors, and sweeps expired sessions closed so monitors
// converge even when no reader observes the expiry.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, store.PoolOptions{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(store.RedisOptions{
		Addr:        cfg.RedisAddr,
		DialTimeout: cfg.RedisDialTimeout,
		OpTimeout:   cfg.RedisOpTimeout,
	})

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campus:attendance:events")
	}

	sessionRepo := session.NewRepository(db.Client)

	if cfg.SessionSweepEnabled {
		startSessionSweep(ctx, log, sessionRepo, cfg.SessionSweepInterval)
	}

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("worker started, waiting for events")
	for evt := range events {
		switch evt.Type {
		case queue.TypeAttendanceRecorded:
			if evt.SessionID == "" {
				continue
			}
			key := "campus:session:" + evt.SessionID + ":present"
			if err := redisClient.Client.Incr(ctx, key).Err(); err != nil {
				log.Warn("live counter update failed", zap.String("session_id", evt.SessionID), zap.Error(err))
				continue
			}
			// Counters outlive the session window only briefly.
			redisClient.Client.Expire(ctx, key, 24*time.Hour)
		case queue.TypeSessionOpened:
			log.Info("session opened", zap.String("session_id", evt.SessionID), zap.Time("at", evt.At))
		}
	}

	log.Info("worker stopped")
}

// startSessionSweep closes expired sessions on a fixed interval.
func startSessionSweep(ctx context.Context, log *zap.Logger, repo *session.Repository, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				closed, err := repo.CloseExpired(sweepCtx, time.Now().UTC())
				cancel()
				if err != nil {
					log.Warn("session sweep failed", zap.Error(err))
					continue
				}
				if closed > 0 {
					metrics.SessionsSweptTotal.Add(float64(closed))
					log.Info("closed expired sessions", zap.Int64("count", closed))
				}
			}
		}
	}()
}
