package application

import (
	"log/slog"
	"sync"
)

// Runner executes a unit of work, either inline or on a separate worker.
type Runner interface {
	Run(task func())
}

// InlineRunner runs every task synchronously in the caller's goroutine.
type InlineRunner struct{}

// Run executes task immediately.
func (InlineRunner) Run(task func()) {
	task()
}

// DefaultPoolWorkers is the worker count used when none is configured.
const DefaultPoolWorkers = 4

// PoolRunner runs tasks on a fixed set of worker goroutines.
// Tasks submitted after Close run inline so their callbacks still fire.
type PoolRunner struct {
	tasks  chan func()
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPoolRunner starts a pool with the given number of workers.
func NewPoolRunner(workers int, logger *slog.Logger) *PoolRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultPoolWorkers
	}

	r := &PoolRunner{
		tasks:  make(chan func(), workers*16),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
	logger.Debug("runner pool started", "workers", workers)
	return r
}

func (r *PoolRunner) work(id int) {
	defer r.wg.Done()
	for task := range r.tasks {
		r.execute(id, task)
	}
}

func (r *PoolRunner) execute(id int, task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("runner task panicked", "worker", id, "panic", rec)
		}
	}()
	task()
}

// Run queues task for a worker. When the queue is full the task runs inline
// in the caller, so tasks submitted from a worker never wait on the queue.
func (r *PoolRunner) Run(task func()) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.logger.Warn("runner closed, running task inline")
		r.execute(-1, task)
		return
	}
	select {
	case r.tasks <- task:
		r.mu.RUnlock()
	default:
		r.mu.RUnlock()
		r.logger.Debug("runner queue full, running task inline")
		r.execute(-1, task)
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (r *PoolRunner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Debug("runner pool stopped")
}
