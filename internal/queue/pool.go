package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config configures a worker Pool.
type Config struct {
	WorkerCount int
	PollEvery   time.Duration
	BatchSize   int
}

// DefaultConfig is a reasonable pool configuration for a single process.
var DefaultConfig = Config{
	WorkerCount: 4,
	PollEvery:   2 * time.Second,
	BatchSize:   10,
}

// Pool owns the lifecycle of a fixed set of Workers polling the same
// queue, mirroring the pool/worker split used across the codebase: the
// pool owns start/stop, each Worker owns its own poll loop.
type Pool struct {
	repo      Repository
	registry  *HandlerRegistry
	audit     AuditSink
	onFailure FailureHandler
	cfg       Config
	workers   []*Worker
	started   bool
}

// NewPool builds a Pool. Handlers must be registered on registry before
// Start is called. audit and onFailure may be nil.
func NewPool(repo Repository, registry *HandlerRegistry, audit AuditSink, onFailure FailureHandler, cfg Config) *Pool {
	return &Pool{repo: repo, registry: registry, audit: audit, onFailure: onFailure, cfg: cfg}
}

// Start spawns cfg.WorkerCount poll-loop goroutines. Calling Start twice
// is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := NewWorker(fmt.Sprintf("worker-%d", i), p.repo, p.registry, p.audit, p.onFailure, p.cfg.PollEvery, p.cfg.BatchSize)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}
}

// Stop signals every worker to finish its current poll iteration and
// waits for them to exit.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool")
	for _, w := range p.workers {
		w.Stop()
	}
	slog.Info("worker pool stopped")
}
