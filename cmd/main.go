package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/tierboard/internal/adapters/discord"
	"github.com/okian/tierboard/internal/adapters/http/api"
	"github.com/okian/tierboard/internal/adapters/mq/queue"
	"github.com/okian/tierboard/internal/adapters/mq/worker"
	"github.com/okian/tierboard/internal/adapters/repository"
	service "github.com/okian/tierboard/internal/app"
	"github.com/okian/tierboard/internal/config"
	"github.com/okian/tierboard/pkg/logger"
	"github.com/okian/tierboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	pruneInterval             = time.Hour
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "tierboard exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run wires the process and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.InitWith(os.Stdout, logger.Format(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := repository.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	// Hook workers outlive ctx so queued side effects drain on shutdown.
	hookQueue := queue.NewInMemoryQueue(queue.WithCapacity(cfg.HookQueueSize))
	pool := worker.NewPool(cfg.HookWorkers, hookQueue)
	pool.Start(context.Background())
	defer func() {
		if err := pool.Shutdown(context.Background()); err != nil {
			log.Error(ctx, "hook pool shutdown failed", logger.Error(err))
		}
	}()

	svc := service.New(store,
		service.WithFloors(cfg.Floors()),
		service.WithCooldown(cfg.Cooldown()),
		service.WithExpiry(cfg.Expiry()),
		service.WithReasonMax(cfg.RejectReasonMax),
		service.WithRetention(cfg.Retention()),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithRunner(pool),
	)

	if cfg.GatewayEnabled() {
		bot, err := discord.New(discord.Config{
			Token:             cfg.DiscordToken,
			GuildID:           cfg.GuildID,
			SubmitChannelID:   cfg.SubmitChannelID,
			ReviewChannelID:   cfg.ReviewChannelID,
			TierlistChannelID: cfg.TierlistChannelID,
			ModRoleID:         cfg.ModRoleID,
			LogChannelID:      cfg.LogChannelID,
			TierlistRoleID:    cfg.TierlistRoleID,
		}, svc,
			discord.WithScoreFloor(cfg.Floors()[0]),
			discord.WithReasonMax(cfg.RejectReasonMax),
		)
		if err != nil {
			return err
		}
		svc.SetPlatform(bot)
		if err := bot.Open(ctx); err != nil {
			return err
		}
		defer func() {
			if err := bot.Close(); err != nil {
				log.Error(ctx, "discord close failed", logger.Error(err))
			}
		}()
	} else {
		log.Warn(ctx, "discord_token not set; running without the chat gateway")
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go every(ctx, systemMetricsInterval, updateSystemMetrics)
	go every(ctx, metrics.RefreshInterval(), func() { updateServiceMetrics(ctx, svc) })
	if cfg.Retention() > 0 {
		go every(ctx, pruneInterval, func() { prune(ctx, svc) })
	}

	if !cfg.LocalOnly() {
		log.Warn(ctx, "operations routes are unauthenticated; exposing them beyond loopback", logger.String("addr", cfg.Addr))
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc).Routes(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// every calls fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the store-derived gauges.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	if _, err := svc.GetStats(ctx); err != nil {
		logger.Get().Warn(ctx, "stats refresh failed", logger.Error(err))
	}
}

func prune(ctx context.Context, svc *service.Service) {
	if _, err := svc.Prune(ctx); err != nil {
		logger.Get().Warn(ctx, "prune failed", logger.Error(err))
	}
}
