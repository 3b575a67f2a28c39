// Command relayqd runs the persistent job queue server: the HTTP adapter and
// the three background reconciliation loops, both wired to one Redis
// database. Configuration comes from an optional TOML file named as the
// single positional CLI argument.
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

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/api"
	"github.com/relayq/relayq/internal/config"
	"github.com/relayq/relayq/internal/control"
	"github.com/relayq/relayq/internal/engine"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/model"
	"github.com/relayq/relayq/internal/wal"
)

func main() {
	var cfgPath string
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)

	bootLog := log.WithComponent(logger.ComponentConfig)
	bootLog.Info("starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "redis_url", cfg.Redis.URL)

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		bootLog.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	eng := engine.New(rdb)

	if err := declareConfiguredQueues(context.Background(), eng, cfg.Queues); err != nil {
		bootLog.Error("failed to declare configured queues", "error", err)
		os.Exit(1)
	}

	execDir, err := wal.ExecutableDir()
	if err != nil {
		bootLog.Error("failed to resolve executable directory for contingency log", "error", err)
		os.Exit(1)
	}
	store := wal.New(execDir)

	server := api.New(eng, store, log, api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		MaxBodySize:  cfg.Server.MaxBodySize,
		NextJobDelay: time.Duration(cfg.Server.NextJobDelay),
	})

	ctx, stopLoops := context.WithCancel(context.Background())
	runner := control.NewRunner(eng, rdb, control.Config{
		TimeoutCheckInterval: time.Duration(cfg.Server.TimeoutCheckInterval),
		RetryCheckInterval:   time.Duration(cfg.Server.RetryCheckInterval),
		ExpiryCheckInterval:  time.Duration(cfg.Server.ExpiryCheckInterval),
		ExpiryCheckStatuses:  cfg.Server.ExpiryCheckStatuses,
	}, log)
	runner.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		bootLog.Info("received shutdown signal, draining", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			bootLog.Error("http adapter failed to start", "error", err)
			stopLoops()
			os.Exit(1)
		}
	}

	stopLoops()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		bootLog.Error("graceful shutdown did not complete cleanly", "error", err)
		os.Exit(1)
	}

	bootLog.Info("shutdown complete")
}

// declareConfiguredQueues ensures every [queue.<name>] section in the config
// file exists in Redis with its declared settings before the server starts
// accepting requests.
func declareConfiguredQueues(ctx context.Context, eng *engine.Engine, queues map[string]model.Settings) error {
	for name, settings := range queues {
		if _, err := eng.CreateOrUpdateQueue(ctx, name, settings); err != nil {
			return fmt.Errorf("declare queue %q: %w", name, err)
		}
	}
	return nil
}
