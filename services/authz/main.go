// Command authz serves action authorization decisions for screengate
// sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/gogogo1024/screengate/services/authz/handler"
	"github.com/gogogo1024/screengate/services/authz/internal/policy"
)

func main() {
	if strings.HasSuffix(filepath.Base(os.Args[0]), ".test") {
		return
	}
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("authz", flag.ContinueOnError)
	configPath := fs.String("config", "authz.yaml", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, loaded, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	store, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := handler.New(handler.Options{
		Store:       store,
		Rate:        rate.Limit(cfg.Limits.Rate),
		Burst:       cfg.Limits.Burst,
		EnableStats: cfg.Server.EnableStats,
		Registry:    registry,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("authz listening",
		"addr", cfg.Server.Addr, "config", *configPath, "config_loaded", loaded,
		"redis", cfg.Redis.Addr != "", "rate", cfg.Limits.Rate, "burst", cfg.Limits.Burst)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newStore picks redis when redis.addr is set and in-memory otherwise.
func newStore(cfg config) (policy.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		return policy.NewInMemoryStore(), func() {}, nil
	}
	dial, read, write, err := cfg.redisTimeouts()
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  dial,
		ReadTimeout:  read,
		WriteTimeout: write,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return policy.NewRedisStore(rdb, cfg.Redis.KeyPrefix), func() { _ = rdb.Close() }, nil
}
