// Package parallel provides a small bounded worker pool used to drive
// several independent synthesis scenarios concurrently from one process.
// It exists because pkg/synth.Solver is explicitly safe to "be driven from
// a host's own worker goroutine and re-entered across check() calls"
// (SPEC_FULL.md §1 "Thread-safety idiom"); this package is the in-repo
// demonstration of that guarantee, grounded on the teacher's
// WorkerPool/ExecutionStats pair (internal/parallel/pool.go, as copied
// from the teacher's miniKanren goal-evaluation concurrency layer) cut down
// to the pieces a finite, bounded batch of scenario runs actually needs.
//
// The teacher's file also shipped a StreamMerger, RateLimiter, LoadBalancer,
// BackpressureController, a work-stealing pool variant, and a heartbeat-based
// DeadlockDetector — all built for an open-ended miniKanren goal stream that
// this repo has no equivalent of (a CEGIS scenario run terminates on its
// own; there is no infinite stream to merge, throttle, or steal work across).
// Those pieces were dropped rather than adapted; see DESIGN.md for the
// per-piece justification.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Pool runs a fixed number of worker goroutines over a task queue. Submit
// blocks once the queue is full, providing natural backpressure without a
// dedicated controller.
type Pool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	once    sync.Once

	stats *ExecutionStats
}

// New creates a Pool with the given worker count. A non-positive count
// defaults to runtime.NumCPU().
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan func(), workers*4),
		stats:   NewExecutionStats(),
	}
	p.stats.RecordWorkerCount(workers)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		start := time.Now()
		task()
		p.stats.RecordTaskCompleted(time.Since(start))
	}
}

// Submit enqueues task for execution, blocking if the queue is full or
// returning ctx.Err() if ctx is cancelled first.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.stats.RecordTaskSubmitted()
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		p.stats.RecordTaskCancelled()
		return ctx.Err()
	}
}

// Shutdown closes the task queue and waits for every in-flight worker to
// drain it. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
	p.stats.Finalize()
}

// Stats returns a snapshot of the pool's execution statistics.
func (p *Pool) Stats() ExecutionStats {
	return p.stats.GetStats()
}

// ExecutionStats accumulates counters describing one Pool's lifetime,
// mirroring the teacher's ExecutionStats (internal/parallel/pool.go)
// trimmed to the fields a bounded scenario batch actually produces: no
// queue-full/scale-up/scale-down/deadlock counters, since this Pool never
// resizes and never blocks indefinitely.
type ExecutionStats struct {
	mu sync.RWMutex

	StartTime          time.Time
	EndTime            time.Time
	TotalExecutionTime time.Duration

	TasksSubmitted int64
	TasksCompleted int64
	TasksCancelled int64

	PeakWorkerCount int

	taskDurationHistory []time.Duration
	AverageTaskDuration  time.Duration
	TasksPerSecond       float64
}

// NewExecutionStats creates an empty ExecutionStats with StartTime set to
// the construction moment.
func NewExecutionStats() *ExecutionStats {
	return &ExecutionStats{
		StartTime:           time.Now(),
		taskDurationHistory: make([]time.Duration, 0, 64),
	}
}

func (es *ExecutionStats) RecordTaskSubmitted() { atomic.AddInt64(&es.TasksSubmitted, 1) }

func (es *ExecutionStats) RecordTaskCompleted(d time.Duration) {
	atomic.AddInt64(&es.TasksCompleted, 1)
	es.mu.Lock()
	es.taskDurationHistory = append(es.taskDurationHistory, d)
	es.mu.Unlock()
}

func (es *ExecutionStats) RecordTaskCancelled() { atomic.AddInt64(&es.TasksCancelled, 1) }

func (es *ExecutionStats) RecordWorkerCount(count int) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if count > es.PeakWorkerCount {
		es.PeakWorkerCount = count
	}
}

// Finalize computes averages and throughput once the pool has drained.
func (es *ExecutionStats) Finalize() {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.EndTime = time.Now()
	es.TotalExecutionTime = es.EndTime.Sub(es.StartTime)

	if len(es.taskDurationHistory) > 0 {
		var total time.Duration
		for _, d := range es.taskDurationHistory {
			total += d
		}
		es.AverageTaskDuration = total / time.Duration(len(es.taskDurationHistory))
	}
	if es.TotalExecutionTime > 0 {
		es.TasksPerSecond = float64(atomic.LoadInt64(&es.TasksCompleted)) / es.TotalExecutionTime.Seconds()
	}
}

// GetStats returns a copy of es safe for the caller to read without
// further synchronization.
func (es *ExecutionStats) GetStats() ExecutionStats {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return ExecutionStats{
		StartTime:           es.StartTime,
		EndTime:             es.EndTime,
		TotalExecutionTime:  es.TotalExecutionTime,
		TasksSubmitted:      atomic.LoadInt64(&es.TasksSubmitted),
		TasksCompleted:      atomic.LoadInt64(&es.TasksCompleted),
		TasksCancelled:      atomic.LoadInt64(&es.TasksCancelled),
		PeakWorkerCount:     es.PeakWorkerCount,
		AverageTaskDuration: es.AverageTaskDuration,
		TasksPerSecond:      es.TasksPerSecond,
		taskDurationHistory: append([]time.Duration(nil), es.taskDurationHistory...),
	}
}
