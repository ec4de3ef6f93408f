package pools

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_InvalidSize(t *testing.T) {
	if _, err := NewWorkerPool(0, 10); err != ErrInvalidPoolSize {
		t.Errorf("Expected ErrInvalidPoolSize for zero workers, got %v", err)
	}
	if _, err := NewWorkerPool(4, 0); err != ErrInvalidPoolSize {
		t.Errorf("Expected ErrInvalidPoolSize for zero queue, got %v", err)
	}
}

func TestWorkerPool_Basic(t *testing.T) {
	pool, err := NewWorkerPool(4, 1000)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		if !pool.Append(TaskFunc(func() { counter.Add(1) })) {
			t.Fatalf("Append %d rejected", i)
		}
	}

	// Close drains the queue before returning.
	pool.Close()

	if counter.Load() != 100 {
		t.Errorf("Expected 100 tasks completed, got %d", counter.Load())
	}
	stats := pool.Stats()
	if stats.TasksCompleted != 100 || stats.TasksPending != 0 {
		t.Errorf("Expected 100 completed / 0 pending, got %+v", stats)
	}
}

func TestWorkerPool_Backpressure(t *testing.T) {
	const workers, maxRequests = 2, 5

	pool, err := NewWorkerPool(workers, maxRequests)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(workers)
	for i := 0; i < workers; i++ {
		pool.Append(TaskFunc(func() {
			started.Done()
			<-release
		}))
	}
	started.Wait()

	runs := make([]atomic.Int32, maxRequests)
	for i := 0; i < maxRequests; i++ {
		i := i
		if !pool.Append(TaskFunc(func() { runs[i].Add(1) })) {
			t.Fatalf("Append %d rejected below capacity", i)
		}
	}

	before := pool.Len()
	if before != maxRequests {
		t.Fatalf("Expected %d queued, got %d", maxRequests, before)
	}
	if pool.Append(TaskFunc(func() { t.Error("rejected task must never run") })) {
		t.Fatal("Append beyond capacity should fail")
	}
	if pool.Len() != before {
		t.Errorf("Rejected append changed queue size: %d -> %d", before, pool.Len())
	}
	if pool.Stats().TasksRejected != 1 {
		t.Errorf("Expected 1 rejection, got %d", pool.Stats().TasksRejected)
	}

	close(release)
	pool.Close()

	for i := range runs {
		if n := runs[i].Load(); n != 1 {
			t.Errorf("Task %d ran %d times, want exactly once", i, n)
		}
	}
}

func TestWorkerPool_ExactlyOnceUnderContention(t *testing.T) {
	pool, err := NewWorkerPool(8, 10000)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	const producers, perProducer = 8, 500
	runs := make([]atomic.Int32, producers*perProducer)

	var wg sync.WaitGroup
	var accepted atomic.Int64
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				idx := p*perProducer + i
				if pool.Append(TaskFunc(func() { runs[idx].Add(1) })) {
					accepted.Add(1)
				}
			}
		}(p)
	}
	wg.Wait()
	pool.Close()

	var ran int64
	for i := range runs {
		n := runs[i].Load()
		if n > 1 {
			t.Fatalf("Task %d ran %d times", i, n)
		}
		ran += int64(n)
	}
	if ran != accepted.Load() {
		t.Errorf("Expected %d accepted tasks to run, got %d", accepted.Load(), ran)
	}
}

func TestWorkerPool_CloseUnblocksIdleWorkers(t *testing.T) {
	pool, err := NewWorkerPool(4, 10)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	done := make(chan struct{})
	go func() {
		pool.Close()
		pool.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not join idle workers")
	}

	if pool.Append(TaskFunc(func() {})) {
		t.Error("Append after Close should fail")
	}
}

func TestWorkerPool_RecoversPanickingTask(t *testing.T) {
	pool, err := NewWorkerPool(1, 10)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	var ran atomic.Bool
	pool.Append(TaskFunc(func() { panic("boom") }))
	pool.Append(TaskFunc(func() { ran.Store(true) }))
	pool.Close()

	if !ran.Load() {
		t.Error("Expected the worker to keep serving after a panic")
	}
	stats := pool.Stats()
	if stats.TasksPanicked != 1 {
		t.Errorf("Expected 1 panicked task, got %d", stats.TasksPanicked)
	}
	if stats.TasksCompleted != 2 || stats.TasksPending != 0 {
		t.Errorf("Expected 2 completed / 0 pending, got %+v", stats)
	}
}

func BenchmarkWorkerPool_Append(b *testing.B) {
	pool, _ := NewWorkerPool(8, 1<<20)
	defer pool.Close()

	task := TaskFunc(func() { _ = 1 + 1 })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pool.Append(task)
		}
	})
}
