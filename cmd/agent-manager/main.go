// Command agent-manager runs the mindmux orchestration engine: the Agent
// Lifecycle Controller, Task Queue Scheduler, and their supporting
// components, fronted by the HTTP/WebSocket façade.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/adapter"
	"github.com/khuongdo/mindmux/internal/audit"
	"github.com/khuongdo/mindmux/internal/balancer"
	"github.com/khuongdo/mindmux/internal/cache"
	"github.com/khuongdo/mindmux/internal/common/config"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/facade/httpapi"
	"github.com/khuongdo/mindmux/internal/facade/stream"
	"github.com/khuongdo/mindmux/internal/lifecycle"
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	"github.com/khuongdo/mindmux/internal/multiplexer/sandbox"
	"github.com/khuongdo/mindmux/internal/multiplexer/tmux"
	"github.com/khuongdo/mindmux/internal/persistence"
	"github.com/khuongdo/mindmux/internal/persistence/legacyjson"
	"github.com/khuongdo/mindmux/internal/persistence/sqlstore"
	"github.com/khuongdo/mindmux/internal/recovery"
	"github.com/khuongdo/mindmux/internal/scheduler"
	"github.com/khuongdo/mindmux/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agent-manager:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	durable, err := openDurableStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening durable store: %w", err)
	}

	auditLog := audit.New(durable, log)
	if cfg.NATS.URL != "" {
		sink, err := audit.NewNATSSink(cfg.NATS.URL, cfg.NATS.Subject, log)
		if err != nil {
			log.Warn("failed to start NATS audit sink, continuing without it", zap.Error(err))
		} else {
			auditLog.AddSink(sink)
			defer sink.Close()
		}
	}

	stateCache := cache.New()
	agentStore := store.NewAgentStore(durable, stateCache, auditLog)
	taskStore := store.NewTaskStore(durable, stateCache, auditLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agentStore.LoadAll(ctx); err != nil {
		return fmt.Errorf("loading agents into cache: %w", err)
	}
	if err := taskStore.LoadAll(ctx); err != nil {
		return fmt.Errorf("loading tasks into cache: %w", err)
	}

	driver, err := buildDriver(cfg, log)
	if err != nil {
		return fmt.Errorf("building multiplexer driver: %w", err)
	}

	monCfg := monitor.Config{
		PollInterval:  cfg.Multiplexer.PollIntervalDuration(),
		IdleThreshold: cfg.Multiplexer.IdleThresholdDuration(),
		Timeout:       5 * time.Minute,
	}
	mon := monitor.New(driver, monCfg)
	adapters := adapter.NewRegistry(driver, mon)

	lifecycleController := lifecycle.New(agentStore, driver, adapters, cfg.Multiplexer.SessionPrefix, log)

	recoveryCoordinator := recovery.New(taskStore, lifecycleController, log)
	if err := recoveryCoordinator.Run(ctx); err != nil {
		log.Error("recovery pass failed, continuing with best-effort state", zap.Error(err))
	}

	lb := balancer.New(balancer.StrategyRoundRobin)
	sched := scheduler.New(taskStore, agentStore, lifecycleController, lb, cfg.Multiplexer.DefaultTimeoutDuration(), log)
	sched.LoadQueueFromStore()
	sched.Kick(ctx)

	streamHub := stream.NewHub(driver, log)
	streamHandler := stream.NewHandler(streamHub, agentStore, log)

	handler := httpapi.NewHandler(agentStore, lifecycleController, sched, auditLog, log)
	router := httpapi.NewRouter(handler, streamHandler, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("agent-manager listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	// Live multiplexer sessions intentionally survive process exit: that is
	// the point of hosting each agent's CLI in a multiplexer session rather
	// than as a child process. Only the durable store is closed here.
	return durable.Close()
}

func openDurableStore(cfg config.DatabaseConfig) (persistence.DurableStore, error) {
	switch cfg.Driver {
	case "postgres":
		return sqlstore.OpenPostgres(cfg.DSN(), 10, 1)
	case "sqlite":
		return sqlstore.OpenSQLite(cfg.Path)
	case "legacyjson":
		return legacyjson.Open(cfg.Path)
	default:
		return sqlstore.OpenSQLite(cfg.Path)
	}
}

func buildDriver(cfg *config.Config, log *logger.Logger) (multiplexer.Driver, error) {
	if cfg.Sandbox.Enabled {
		client, err := sandbox.NewClient(cfg.Sandbox, log)
		if err != nil {
			return nil, fmt.Errorf("connecting to docker: %w", err)
		}
		return sandbox.New(client, cfg.Sandbox.Image, log), nil
	}
	return tmux.New(cfg.Multiplexer.Binary, cfg.Multiplexer.SessionPrefix, log), nil
}
