package paymentgateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrQueueFull  = errors.New("payment queue full, please try again later")
	ErrPoolClosed = errors.New("payment worker pool is shutting down")
)

// Job is one staged payment attempt; it owns its own deadline.
// Abort is called instead of Run when the pool shuts down before a worker picks the job up.
type Job struct {
	SessionID string
	Run       func()
	Abort     func(error)
}

func (j Job) abort(err error) {
	if j.Abort != nil {
		j.Abort(err)
	}
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				if ctx.Err() != nil {
					job.abort(ErrPoolClosed)
					return
				}
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "session_id", job.SessionID)
				job.Run()
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Pool runs staged payment attempts on a bounded set of workers.
type Pool struct {
	logger *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
	stopOnce   sync.Once

	mu     sync.Mutex
	closed bool
}

type PoolConfig struct {
	MaxWorkers   int
	JobQueueSize int
}

func NewPool(config PoolConfig, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	pool := &Pool{
		logger:     logger,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	pool.start()

	return pool
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			worker := NewWorker(i, p.workerPool, p.logger)
			worker.Start(p.ctx, &p.wg)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("payment worker pool started",
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

func (p *Pool) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- job:
				case <-p.ctx.Done():
					p.logger.Info("dispatcher shutting down")
					job.abort(ErrPoolClosed)
					return
				}
			case <-p.ctx.Done():
				p.logger.Info("dispatcher shutting down")
				job.abort(ErrPoolClosed)
				return
			}
		case <-p.ctx.Done():
			p.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// Submit queues a job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobQueue <- job:
		p.logger.Debug("payment job queued",
			"session_id", job.SessionID,
			"queue_length", len(p.jobQueue))
		return nil
	default:
		p.logger.Warn("job queue full, rejecting payment",
			"session_id", job.SessionID,
			"queue_capacity", cap(p.jobQueue))
		return ErrQueueFull
	}
}

// Shutdown stops accepting work, waits for running jobs to return and aborts
// every job that never reached a worker.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down payment worker pool")
		p.mu.Lock()
		p.closed = true
		p.cancel()
		p.mu.Unlock()

		p.wg.Wait()

		aborted := 0
		for {
			select {
			case job := <-p.jobQueue:
				job.abort(ErrPoolClosed)
				aborted++
				continue
			default:
			}
			break
		}
		p.logger.Info("payment worker pool shutdown complete", "aborted_jobs", aborted)
	})
}
