package parallel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutionStats(t *testing.T) {
	stats := NewExecutionStats()

	if stats.TasksSubmitted != 0 {
		t.Errorf("expected 0 tasks submitted initially, got %d", stats.TasksSubmitted)
	}

	stats.RecordTaskSubmitted()
	if stats.TasksSubmitted != 1 {
		t.Errorf("expected 1 task submitted, got %d", stats.TasksSubmitted)
	}

	stats.RecordTaskCompleted(100 * time.Millisecond)
	if stats.TasksCompleted != 1 {
		t.Errorf("expected 1 task completed, got %d", stats.TasksCompleted)
	}

	stats.RecordTaskCancelled()
	if stats.TasksCancelled != 1 {
		t.Errorf("expected 1 task cancelled, got %d", stats.TasksCancelled)
	}

	stats.RecordWorkerCount(5)
	if stats.PeakWorkerCount != 5 {
		t.Errorf("expected peak worker count 5, got %d", stats.PeakWorkerCount)
	}

	stats.Finalize()
	if stats.TotalExecutionTime <= 0 {
		t.Errorf("expected positive total execution time, got %v", stats.TotalExecutionTime)
	}
	if stats.AverageTaskDuration != 100*time.Millisecond {
		t.Errorf("expected average task duration 100ms, got %v", stats.AverageTaskDuration)
	}
}

func TestPoolRunsEveryTask(t *testing.T) {
	p := New(4)

	var completed int64
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if err := p.Submit(ctx, func() { atomic.AddInt64(&completed, 1) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Shutdown()

	if got := atomic.LoadInt64(&completed); got != 20 {
		t.Errorf("expected 20 completed tasks, got %d", got)
	}
	stats := p.Stats()
	if stats.TasksCompleted != 20 {
		t.Errorf("expected stats to report 20 completed tasks, got %d", stats.TasksCompleted)
	}
}

func TestPoolSubmitRespectsCancellation(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	// Saturate the single worker and its queue so a further Submit would
	// otherwise block indefinitely.
	block := make(chan struct{})
	ctx := context.Background()
	for i := 0; i < 1+4; i++ { // 1 worker slot + queue capacity (workers*4)
		_ = p.Submit(ctx, func() { <-block })
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Submit(cancelCtx, func() {}); err == nil {
		t.Error("expected Submit to report the context's cancellation, got nil")
	}
	close(block)
}

func TestDefaultWorkerCountIsPositive(t *testing.T) {
	p := New(0)
	defer p.Shutdown()
	if p.workers <= 0 {
		t.Errorf("expected a positive default worker count, got %d", p.workers)
	}
}
