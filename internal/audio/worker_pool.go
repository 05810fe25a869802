package audio

import (
	"sync"

	"github.com/ccl-123/Aibox-ESP32-C3-demo/internal/logging"
	"github.com/rs/zerolog"
)

// WorkerPool is the Background Worker Pool of spec.md §4.5: a fixed
// number of workers draining a single FIFO of closures, with Schedule()
// as the pool's only form of backpressure onto producers.
//
// Structurally this is the teacher's GoroutinePool (goroutine_pool.go) —
// panic-recovering workers, sync.Once shutdown — with the task counter
// kept as a plain int under the pool mutex, and Submit's non-blocking "reject if full" is replaced with
// the spec's blocking Schedule(), grounded literally on the original
// firmware's BackgroundTask::Schedule (background_task.cc): once
// active_tasks reaches HARD_LIMIT, callers block on a condition variable
// until it drops back below SOFT_LIMIT.
type WorkerPool struct {
	mu        sync.Mutex
	cond      *sync.Cond
	tasks     []task
	active    int
	workers   int
	softWarn  int
	softLimit int
	hardLimit int

	shutdown     bool
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	logger *zerolog.Logger
	name   string
}

// NewWorkerPool starts workerCount worker goroutines draining a shared
// task list, with the soft/hard limits of spec.md §4.5.
func NewWorkerPool(name string, workerCount, softWarn, softLimit, hardLimit int) *WorkerPool {
	logger := logging.Get("worker-pool-" + name)
	p := &WorkerPool{
		workers:   workerCount,
		softWarn:  softWarn,
		softLimit: softLimit,
		hardLimit: hardLimit,
		logger:    logger,
		name:      name,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	return p
}

// Schedule appends a closure to the pool's queue. If active_tasks has
// reached HARD_LIMIT, Schedule blocks until it falls below SOFT_LIMIT
// (spec.md §4.5, §5's "Schedule() above its soft limit" suspension
// point). Per spec.md §7, exhaustion here is documented backpressure, not
// an error — the only error return is ErrPoolShuttingDown.
func (p *WorkerPool) Schedule(t task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return ErrPoolShuttingDown
	}

	if p.active >= p.hardLimit {
		p.logger.Warn().Int("active_tasks", p.active).Msg("worker pool queue full, blocking producer")
		GetMetrics().WorkerBlockedTotal.Inc()
		for p.active >= p.softLimit && !p.shutdown {
			p.cond.Wait()
		}
		if p.shutdown {
			return ErrPoolShuttingDown
		}
	} else if p.active >= p.softWarn {
		p.logger.Warn().Int("active_tasks", p.active).Msg("worker pool queue growing")
	}

	p.active++
	GetMetrics().WorkerActiveTasks.Set(float64(p.active))
	p.tasks = append(p.tasks, t)
	p.cond.Broadcast()
	return nil
}

// WaitForCompletion blocks until the task queue is empty and no worker is
// executing a task, matching spec.md §4.5's wait_for_completion and its
// use in set_state to bracket codec reconfiguration (spec.md §9).
func (p *WorkerPool) WaitForCompletion() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for (len(p.tasks) > 0 || p.active > 0) && !p.shutdown {
		p.cond.Wait()
	}
}

// ActiveTasks reports the current active_tasks count (spec.md §8
// property 5).
func (p *WorkerPool) ActiveTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Shutdown stops accepting new work and wakes any blocked producers or
// waiters. Existing workers finish draining the queue and exit.
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.cond.Broadcast()
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *WorkerPool) workerLoop(id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()
	logger.Debug().Msg("worker started")

	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.shutdown {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 && p.shutdown {
			p.mu.Unlock()
			return
		}
		t := p.tasks[0]
		p.tasks = p.tasks[1:]
		p.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Interface("panic", r).Msg("task panic recovered")
				}
			}()
			t()
		}()

		p.mu.Lock()
		p.active--
		GetMetrics().WorkerActiveTasks.Set(float64(p.active))
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}
