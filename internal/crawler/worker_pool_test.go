package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	pool, err := NewWorkerPool(context.Background(), 4, 16)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()
	pool.Close()

	if got := ran.Load(); got != 50 {
		t.Fatalf("ran %d tasks, want 50", got)
	}
}

func TestWorkerPoolRejectsInvalidSizes(t *testing.T) {
	if _, err := NewWorkerPool(context.Background(), 0, 10); err == nil {
		t.Fatal("zero concurrency accepted")
	}
	if _, err := NewWorkerPool(context.Background(), 2, 0); err == nil {
		t.Fatal("zero queue size accepted")
	}
}

func TestWorkerPoolSubmitFailsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool, err := NewWorkerPool(ctx, 1, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	cancel()

	// The worker may need a moment to observe cancellation; Submit itself
	// must fail regardless because the pool context is done.
	deadline := time.After(time.Second)
	for {
		err := pool.Submit(context.Background(), func(ctx context.Context) {})
		if err != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("submit kept succeeding after pool cancellation")
		default:
		}
	}
}

func TestWorkerPoolCloseRunsQueuedTasks(t *testing.T) {
	pool, err := NewWorkerPool(context.Background(), 1, 8)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	block := make(chan struct{})
	var ran atomic.Int64
	// Occupy the single worker, then queue tasks behind it. Close must run
	// every queued task (with a cancelled context) so completion accounting
	// in task closures always balances.
	pool.Submit(context.Background(), func(ctx context.Context) { <-block })
	for i := 0; i < 5; i++ {
		if err := pool.Submit(context.Background(), func(ctx context.Context) {
			if ctx.Err() == nil {
				t.Error("queued task saw a live context after Close")
			}
			ran.Add(1)
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	close(block)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	if got := ran.Load(); got != 5 {
		t.Fatalf("ran %d queued tasks during Close, want 5", got)
	}
}

func TestWorkerPoolSubmitHonoursCallerContext(t *testing.T) {
	pool, err := NewWorkerPool(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	block := make(chan struct{})
	// Occupy the single worker and fill the queue.
	pool.Submit(context.Background(), func(ctx context.Context) { <-block })
	pool.Submit(context.Background(), func(ctx context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.Submit(ctx, func(ctx context.Context) {}); err == nil {
		t.Fatal("submit succeeded despite full queue and expired context")
	}
	close(block)
}
