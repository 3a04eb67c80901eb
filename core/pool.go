package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/mockup-studio/config"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// Pool runs background jobs (image loads, edit-service calls) on a fixed set
// of workers. It is safe for concurrent use.
type Pool struct {
	cfg    config.Config
	logger Logger

	jobQueue chan Job
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once
	shutdown chan struct{}

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// NewPool creates a Pool sized from cfg. Call Start before submitting jobs and
// Stop when done.
func NewPool(cfg config.Config) *Pool {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		cfg:      cfg,
		logger:   NopLogger{},
		jobQueue: make(chan Job, queueSize),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (p *Pool) SetLogger(l Logger) {
	if l != nil {
		p.logger = l
	}
}

// Start launches the workers.  It is idempotent.
func (p *Pool) Start() {
	p.start.Do(func() {
		workerCount := p.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop signals the workers to exit and waits for in-flight jobs. Queued jobs
// that never started are dropped. It is idempotent.
func (p *Pool) Stop() {
	p.stop.Do(func() { close(p.shutdown) })
	p.wg.Wait()
}

// Submit enqueues an async job.  Returns ErrWorkerPoolFull if the queue is full.
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.shutdown:
		return apperrors.New(apperrors.CategoryPipeline, "pool.submit", apperrors.ErrClosed)
	default:
	}
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return apperrors.New(apperrors.CategoryPipeline, "pool.submit", apperrors.ErrWorkerPoolFull)
	}
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job := <-p.jobQueue:
			p.runJob(job)
		}
	}
}

func (p *Pool) runJob(job Job) {
	ctx := job.Ctx
	if timeout := p.cfg.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := p.safeRun(ctx, job)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		p.logger.Debug("pool.job.error", "job", job.ID, "error", err)
	} else {
		atomic.AddInt64(&p.processedCount, 1)
	}
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Err: err}
	}
}

func (p *Pool) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.CategoryPipeline, "pool.job", fmt.Errorf("panic: %v", r))
		}
	}()
	if job.Run == nil {
		return nil
	}
	return job.Run(ctx)
}

// ProcessedCount returns the number of jobs that finished without error.
func (p *Pool) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the number of jobs that failed.
func (p *Pool) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }
