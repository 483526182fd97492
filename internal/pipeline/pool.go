// Package pipeline implements the two-stage batch analysis pipeline: windowed
// relative ranking, promotion filtering, deep batch analysis with response
// de-multiplexing, and the coordinator that composes them.
package pipeline

import (
	"sync"

	"github.com/ternarybob/arbor"
)

// Pool is a bounded worker pool. Two instances run per pipeline invocation:
// a small one for backend calls and a larger one for auxiliary I/O, so a slow
// PDF download never holds an analysis slot.
type Pool struct {
	name   string
	logger arbor.ILogger
	tasks  chan func()
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool starts a pool of numWorkers workers. The task channel is unbuffered:
// Submit blocks while every worker is busy, which bounds in-flight work.
func NewPool(name string, numWorkers int, logger arbor.ILogger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	p := &Pool{
		name:   name,
		logger: logger,
		tasks:  make(chan func()),
	}

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Info().
		Str("pool", name).
		Int("num_workers", numWorkers).
		Msg("Worker pool started")

	return p
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug().
		Str("pool", p.name).
		Int("worker_id", workerID).
		Msg("Worker started")

	for task := range p.tasks {
		task()
	}

	p.logger.Debug().
		Str("pool", p.name).
		Int("worker_id", workerID).
		Msg("Worker stopping")
}

// Submit hands a task to the pool and returns once a worker has accepted it.
// Must not be called after Stop.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// SubmitWait runs a task on the pool and blocks until it completes
func (p *Pool) SubmitWait(task func()) {
	done := make(chan struct{})
	p.tasks <- func() {
		defer close(done)
		task()
	}
	<-done
}

// Stop drains the pool gracefully: queued tasks finish, then workers exit
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()

	p.logger.Info().
		Str("pool", p.name).
		Msg("Worker pool stopped")
}
