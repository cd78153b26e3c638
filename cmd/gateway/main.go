package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ssocolow/zk-hyle/internal/api"
	"github.com/ssocolow/zk-hyle/internal/config"
	"github.com/ssocolow/zk-hyle/internal/idempotency"
	"github.com/ssocolow/zk-hyle/internal/interest"
	"github.com/ssocolow/zk-hyle/internal/lease"
	"github.com/ssocolow/zk-hyle/internal/upstream"
)

var log = logging.Logger("gateway")

func main() {
	cfg := config.Load()
	if err := setLogLevel(cfg.LogLevel); err != nil {
		log.Warnw("ignoring log level", "level", cfg.LogLevel, "err", err)
	}

	if err := run(cfg); err != nil {
		log.Errorw("gateway failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	client, err := upstream.NewClient(cfg.UpstreamBaseURL, upstream.WithTimeout(cfg.UpstreamTimeout))
	if err != nil {
		return err
	}

	store, err := buildInterestStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []api.Option{api.WithStrictInterests(cfg.StrictInterests)}
	if cfg.IdempotencyEnabled {
		opts = append(opts, api.WithIdempotency(buildIdempotencyStore(redisClient), cfg.IdempotencyTTL, cfg.IdempotencyLockTTL))
	}
	server := api.NewServer(client, store, opts...)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("gateway listening",
			"addr", cfg.HTTPAddr,
			"upstream", client.BaseURL(),
			"interest_backend", cfg.InterestBackend,
			"writer_lock", cfg.InterestWriterLock)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Infow("gateway shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func buildInterestStore(ctx context.Context, cfg config.Config, redisClient *redis.Client) (*interest.Store, error) {
	var backend interest.Backend
	switch cfg.InterestBackend {
	case config.InterestBackendFile:
		fileBackend, err := interest.NewFileBackend(cfg.InterestFile)
		if err != nil {
			return nil, err
		}
		backend = fileBackend
	case config.InterestBackendRedis:
		if redisClient == nil {
			return nil, errors.New("REDIS_ADDR is required for the redis interest backend")
		}
		backend = interest.NewRedisBackend(redisClient, cfg.InterestRedisKey)
	case config.InterestBackendPostgres:
		pgBackend, err := interest.NewPostgresBackend(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		backend = pgBackend
	case config.InterestBackendPebble:
		pebbleBackend, err := interest.NewPebbleBackend(cfg.InterestPebbleDir)
		if err != nil {
			return nil, err
		}
		backend = pebbleBackend
	default:
		return nil, fmt.Errorf("unknown interest backend %q", cfg.InterestBackend)
	}

	var opts []interest.StoreOption
	switch cfg.InterestWriterLock {
	case config.WriterLockMutex:
		opts = append(opts, interest.WithLocker(interest.NewMutexLocker()))
	case config.WriterLockLease:
		var manager lease.Manager = lease.NewInMemoryManager()
		if redisClient != nil {
			manager = lease.NewRedisManager(redisClient, "zkhyle:lease")
		}
		opts = append(opts, interest.WithLocker(interest.NewLeaseLocker(manager, cfg.InterestLockTTL)))
	}
	return interest.NewStore(backend, opts...), nil
}

func buildIdempotencyStore(redisClient *redis.Client) idempotency.Store {
	if redisClient != nil {
		return idempotency.NewRedisStore(redisClient, "zkhyle:idempotency")
	}
	return idempotency.NewInMemoryStore()
}

func setLogLevel(level string) error {
	parsed, err := logging.LevelFromString(level)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(parsed)
	return nil
}
