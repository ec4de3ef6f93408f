package pools

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrInvalidPoolSize is returned when the worker or queue size is not positive
var ErrInvalidPoolSize = errors.New("pools: worker count and queue size must be positive")

// Task is a unit of work run to completion on one worker
type Task interface {
	Process()
}

// TaskFunc adapts a plain function to Task
type TaskFunc func()

// Process calls f
func (f TaskFunc) Process() { f() }

// WorkerPool runs queued tasks on a fixed set of goroutines.
// The queue is bounded; Append never blocks and never retries.
type WorkerPool struct {
	numWorkers  int
	maxRequests int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *list.List
	stopped bool
	wg      sync.WaitGroup

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksRejected  atomic.Uint64
		tasksPanicked  atomic.Uint64
	}
}

// NewWorkerPool starts numWorkers goroutines serving a queue of at most
// maxRequests pending tasks
func NewWorkerPool(numWorkers, maxRequests int) (*WorkerPool, error) {
	if numWorkers <= 0 || maxRequests <= 0 {
		return nil, ErrInvalidPoolSize
	}

	pool := &WorkerPool{
		numWorkers:  numWorkers,
		maxRequests: maxRequests,
		queue:       list.New(),
	}
	pool.cond = sync.NewCond(&pool.mu)

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.run()
	}

	return pool, nil
}

// Append queues task for a worker. It returns false without queuing when
// the queue is full or the pool is closed; the caller owns that outcome.
func (p *WorkerPool) Append(task Task) bool {
	if task == nil {
		return false
	}

	p.mu.Lock()
	if p.stopped || p.queue.Len() >= p.maxRequests {
		p.mu.Unlock()
		p.stats.tasksRejected.Add(1)
		return false
	}
	p.queue.PushBack(task)
	p.stats.tasksSubmitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return true
}

// run is the main loop for a worker goroutine
func (p *WorkerPool) run() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.stopped {
			p.cond.Wait()
		}
		front := p.queue.Front()
		if front == nil {
			// stopped and drained
			p.mu.Unlock()
			return
		}
		task := p.queue.Remove(front).(Task)
		p.mu.Unlock()

		p.process(task)
	}
}

// process runs one task. A panicking task is counted and dropped so the
// worker keeps serving the queue.
func (p *WorkerPool) process(task Task) {
	defer func() {
		if err := recover(); err != nil {
			p.stats.tasksPanicked.Add(1)
		}
		p.stats.tasksCompleted.Add(1)
	}()
	task.Process()
}

// Len returns the number of queued tasks not yet picked up
func (p *WorkerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Close stops accepting tasks, lets the workers drain what is queued and
// waits for them to exit. Calling Close more than once is safe.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	submitted := p.stats.tasksSubmitted.Load()
	completed := p.stats.tasksCompleted.Load()
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		MaxRequests:    p.maxRequests,
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksRejected:  p.stats.tasksRejected.Load(),
		TasksPanicked:  p.stats.tasksPanicked.Load(),
		TasksPending:   submitted - completed,
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int    `json:"num_workers"`
	MaxRequests    int    `json:"max_requests"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksRejected  uint64 `json:"tasks_rejected"`
	TasksPanicked  uint64 `json:"tasks_panicked"`
	TasksPending   uint64 `json:"tasks_pending"`
}
