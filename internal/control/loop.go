package control

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/engine"
	"github.com/relayq/relayq/internal/logger"
	"github.com/relayq/relayq/internal/metrics"
	"github.com/relayq/relayq/internal/model"
)

const (
	lockKeyTimeout = "control:lock:timeout"
	lockKeyRetry   = "control:lock:retry"
	lockKeyExpiry  = "control:lock:expiry"
)

// Config carries the three loops' tick intervals and the expiry reconciler's
// status filter, sourced from [server] in the TOML config.
type Config struct {
	TimeoutCheckInterval time.Duration
	RetryCheckInterval   time.Duration
	ExpiryCheckInterval  time.Duration
	ExpiryCheckStatuses  []model.Status
}

// DefaultConfig returns the intervals named in 4.D.
func DefaultConfig() Config {
	return Config{
		TimeoutCheckInterval: 30 * time.Second,
		RetryCheckInterval:   60 * time.Second,
		ExpiryCheckInterval:  5 * time.Minute,
		ExpiryCheckStatuses: []model.Status{
			model.StatusFailed,
			model.StatusCompleted,
			model.StatusCancelled,
			model.StatusTimedOut,
		},
	}
}

// Runner owns the three reconciliation loops and their Redis client, used
// only to take out the per-loop mutual-exclusion lock.
type Runner struct {
	eng    *engine.Engine
	rdb    *redis.Client
	cfg    Config
	log    logger.Logger
	metric *metrics.Collector
}

// NewRunner builds a Runner ready to Start.
func NewRunner(eng *engine.Engine, rdb *redis.Client, cfg Config, log logger.Logger) *Runner {
	return &Runner{
		eng:    eng,
		rdb:    rdb,
		cfg:    cfg,
		log:    log.WithComponent(logger.ComponentControl),
		metric: metrics.Default(),
	}
}

// Start spawns the three loops as goroutines; they run until ctx is
// cancelled, which happens at the start of Draining (4.D).
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx, "timeout_check", r.cfg.TimeoutCheckInterval, lockKeyTimeout, r.runTimeoutCheck)
	go r.loop(ctx, "retry_check", r.cfg.RetryCheckInterval, lockKeyRetry, r.runRetryCheck)
	go r.loop(ctx, "expiry_check", r.cfg.ExpiryCheckInterval, lockKeyExpiry, r.runExpiryCheck)
}

// loop is the shared ticker/lock/backoff skeleton for all three
// reconcilers: acquire the lock, run the pass, release, sleep until the next
// tick. A Redis connection failure backs off once by the interval before
// retrying; a scripting error is logged and the loop continues regardless.
func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, lockKey string, run func(ctx context.Context) (int, error)) {
	r.log.Info("control loop started", "loop", name, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("control loop stopping", "loop", name)
			return
		case <-ticker.C:
			r.tick(ctx, name, interval, lockKey, run)
		}
	}
}

func (r *Runner) tick(ctx context.Context, name string, interval time.Duration, lockKey string, run func(ctx context.Context) (int, error)) {
	lock, err := AcquireLock(ctx, r.rdb, lockKey, interval)
	if err != nil {
		r.log.Error("failed to acquire control lock", "loop", name, "error", err)
		time.Sleep(interval)
		return
	}
	if lock == nil {
		r.log.Debug("control lock held by another instance", "loop", name)
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			r.log.Error("failed to release control lock", "loop", name, "error", err)
		}
	}()

	n, err := run(ctx)
	if err != nil {
		r.log.Error("control loop pass failed", "loop", name, "error", err)
		return
	}
	if n > 0 {
		r.log.Info("control loop pass complete", "loop", name, "count", n)
	}
}

func (r *Runner) runTimeoutCheck(ctx context.Context) (int, error) {
	reaped, toFailed, toTimedOut, err := r.eng.CheckRunningTimeouts(ctx, nowMS())
	if err == nil {
		r.metric.RecordTimeoutsReaped(reaped)
		r.metric.RecordTransitionN(model.StatusRunning, model.StatusFailed, toFailed)
		r.metric.RecordTransitionN(model.StatusRunning, model.StatusTimedOut, toTimedOut)
	}
	return reaped, err
}

func (r *Runner) runRetryCheck(ctx context.Context) (int, error) {
	processed, rescheduled, err := r.eng.CheckRetries(ctx, nowMS())
	if err == nil {
		r.metric.RecordRetriesApplied(processed)
		r.metric.RecordTransitionN(model.StatusFailed, model.StatusQueued, rescheduled)
	}
	return processed, err
}

func (r *Runner) runExpiryCheck(ctx context.Context) (int, error) {
	n, byStatus, err := r.eng.CheckExpiry(ctx, nowMS(), r.cfg.ExpiryCheckStatuses)
	if err == nil {
		r.metric.RecordJobsExpired(n)
		r.metric.RecordExpiredStatuses(byStatus)
	}
	return n, err
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
