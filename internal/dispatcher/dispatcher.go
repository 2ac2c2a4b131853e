// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
	"github.com/JakeFAU/comic-archive-crawler/internal/worker"
)

// DefaultSize is the worker count used when none is configured.
const DefaultSize = 32

// Pool is a fixed-size set of workers sharing one queue. Workers exit once the
// queue is closed and empty, so Wait returns only after the queue is closed.
type Pool struct {
	workers []*worker.Worker
	wg      sync.WaitGroup
	once    sync.Once
	logger  *zap.Logger
}

// New creates a Pool of size workers. Non-positive sizes use DefaultSize.
func New(queue crawler.Queue, processor crawler.Processor, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := make([]*worker.Worker, 0, size)
	for i := range size {
		workers = append(workers, worker.New(i, queue, processor, logger))
	}
	return &Pool{
		workers: workers,
		logger:  logger,
	}
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start launches every worker. Calling Start more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		p.logger.Info("starting worker pool", zap.Int("workers", len(p.workers)))
		for _, w := range p.workers {
			p.wg.Add(1)
			go func(wk *worker.Worker) {
				defer p.wg.Done()
				wk.Run(ctx)
			}(w)
		}
	})
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}
