package utils

import (
	"sync"
	"time"
)

// WorkerPool runs submitted jobs on a fixed number of goroutines. The
// recorder uses it to keep store writes off the engine goroutine.
type WorkerPool struct {
	workers   int
	workQueue chan func()
	wg        sync.WaitGroup
	running   bool
	stopped   bool
	mu        sync.RWMutex
}

// NewWorkerPool creates a pool with the given number of workers and queue
// capacity. A non-positive queue size defaults to twice the worker count.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers * 2
	}
	return &WorkerPool{
		workers:   workers,
		workQueue: make(chan func(), queueSize),
	}
}

// Start launches the workers. Calling it again, or after Stop, does nothing.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running || wp.stopped {
		return
	}
	wp.running = true

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop refuses further work, lets the workers drain what is queued and
// waits for them to exit.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.stopped = true
		wp.mu.Unlock()
		return
	}
	wp.running = false
	wp.stopped = true
	close(wp.workQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
}

// Submit queues a job without blocking. It returns false when the queue is
// full or the pool is not running.
func (wp *WorkerPool) Submit(work func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return false
	}

	select {
	case wp.workQueue <- work:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued jobs
func (wp *WorkerPool) Pending() int {
	return len(wp.workQueue)
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for work := range wp.workQueue {
		if work != nil {
			work()
		}
	}
}

// RateLimiter is a token bucket. The monitor uses it to thin the per-frame
// event stream sent to websocket clients.
type RateLimiter struct {
	rate     int
	interval time.Duration
	tokens   chan struct{}
	stopCh   chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewRateLimiter allows rate operations per interval. The bucket starts
// full.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	if rate < 1 {
		rate = 1
	}
	rl := &RateLimiter{
		rate:     rate,
		interval: interval,
		tokens:   make(chan struct{}, rate),
		stopCh:   make(chan struct{}),
	}
	for i := 0; i < rate; i++ {
		rl.tokens <- struct{}{}
	}
	return rl
}

// Start begins refilling the bucket
func (rl *RateLimiter) Start() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.running {
		return
	}
	rl.running = true
	go rl.refillTokens()
}

// Stop ends the refill. It must not be followed by Start.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.running {
		return
	}
	rl.running = false
	close(rl.stopCh)
}

// Wait blocks until a token is available
func (rl *RateLimiter) Wait() {
	<-rl.tokens
}

// TryWait takes a token if one is available
func (rl *RateLimiter) TryWait() bool {
	select {
	case <-rl.tokens:
		return true
	default:
		return false
	}
}

func (rl *RateLimiter) refillTokens() {
	ticker := time.NewTicker(rl.interval / time.Duration(rl.rate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case rl.tokens <- struct{}{}:
			default:
			}
		case <-rl.stopCh:
			return
		}
	}
}
