package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be executed
type Task struct {
	ID      string
	Fn      func(context.Context) error
	Context context.Context
}

// WorkerPool runs tasks on a bounded set of goroutines. With one worker it
// is a serial executor: tasks run one at a time in submission order.
// Submission never blocks; Stop abandons whatever is still queued.
type WorkerPool struct {
	name           string
	maxWorkers     int
	taskQueue      chan Task
	queueSize      int
	logger         *zap.Logger
	onReject       func(name string)
	wg             sync.WaitGroup
	stopOnce       sync.Once
	stopChan       chan struct{}
	activeWorkers  int32
	totalTasks     uint64
	completedTasks uint64
	failedTasks    uint64
	rejectedTasks  uint64
	abandonedTasks uint64
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
	// OnReject is called for every rejected submission
	OnReject func(name string)
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(cfg *Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pool := &WorkerPool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		queueSize:  cfg.QueueSize,
		taskQueue:  make(chan Task, cfg.QueueSize),
		logger:     cfg.Logger,
		onReject:   cfg.OnReject,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < pool.maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Debug("Worker pool started",
		zap.String("name", pool.name),
		zap.Int("max_workers", pool.maxWorkers),
		zap.Int("queue_size", pool.queueSize))

	return pool
}

// NewSerialExecutor creates a single-worker pool
func NewSerialExecutor(name string, queueSize int, logger *zap.Logger) *WorkerPool {
	return NewWorkerPool(&Config{
		Name:       name,
		MaxWorkers: 1,
		QueueSize:  queueSize,
		Logger:     logger,
	})
}

// Name returns the pool name
func (p *WorkerPool) Name() string {
	return p.name
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		// Stop wins over queued work.
		select {
		case <-p.stopChan:
			return
		default:
		}

		select {
		case <-p.stopChan:
			return
		case task := <-p.taskQueue:
			p.executeTask(id, task)
		}
	}
}

func (p *WorkerPool) executeTask(workerID int, task Task) {
	atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)

	start := time.Now()
	err := p.safeExecute(task)
	duration := time.Since(start)

	if err != nil {
		atomic.AddUint64(&p.failedTasks, 1)
		p.logger.Error("Task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", duration),
			zap.Error(err))
	} else {
		atomic.AddUint64(&p.completedTasks, 1)
	}
}

// safeExecute executes a task with panic recovery
func (p *WorkerPool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()

	if task.Context == nil {
		task.Context = context.Background()
	}

	return task.Fn(task.Context)
}

func (p *WorkerPool) reject() {
	atomic.AddUint64(&p.rejectedTasks, 1)
	if p.onReject != nil {
		p.onReject(p.name)
	}
}

// Submit submits a task to the worker pool.
// Returns error if the queue is full or pool is stopped.
func (p *WorkerPool) Submit(task Task) error {
	select {
	case <-p.stopChan:
		p.reject()
		return fmt.Errorf("worker pool '%s' is stopped", p.name)
	default:
	}

	select {
	case p.taskQueue <- task:
		atomic.AddUint64(&p.totalTasks, 1)
		return nil
	default:
		p.reject()
		return fmt.Errorf("worker pool '%s' queue is full", p.name)
	}
}

// TrySubmit attempts to submit a task without blocking.
// Returns false if queue is full or pool is stopped.
func (p *WorkerPool) TrySubmit(task Task) bool {
	return p.Submit(task) == nil
}

// SubmitAndWait submits a task and blocks until it has run or ctx is done.
// The task still runs later if ctx expires after it was queued.
func (p *WorkerPool) SubmitAndWait(ctx context.Context, task Task) error {
	done := make(chan error, 1)
	fn := task.Fn
	task.Fn = func(c context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("task panicked: %v", r)
				panic(r)
			}
			done <- err
		}()
		return fn(c)
	}

	if err := p.Submit(task); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-p.stopChan:
		return fmt.Errorf("worker pool '%s' stopped before task %s ran", p.name, task.ID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task submitted before the call has run.
// Only meaningful for a serial executor.
func (p *WorkerPool) Flush(ctx context.Context) error {
	return p.SubmitAndWait(ctx, Task{
		ID: "flush",
		Fn: func(context.Context) error { return nil },
	})
}

// Stop stops the worker pool. In-flight tasks finish; queued tasks are
// abandoned.
func (p *WorkerPool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
			p.logger.Warn("Worker pool stop timeout", zap.String("name", p.name))
		}

		abandoned := uint64(len(p.taskQueue))
		atomic.StoreUint64(&p.abandonedTasks, abandoned)
		p.logger.Debug("Worker pool stopped",
			zap.String("name", p.name),
			zap.Uint64("abandoned_tasks", abandoned))
	})
	return err
}

// Stats returns current worker pool statistics
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Name:           p.name,
		MaxWorkers:     p.maxWorkers,
		ActiveWorkers:  int(atomic.LoadInt32(&p.activeWorkers)),
		QueueSize:      p.queueSize,
		QueuedTasks:    len(p.taskQueue),
		TotalTasks:     atomic.LoadUint64(&p.totalTasks),
		CompletedTasks: atomic.LoadUint64(&p.completedTasks),
		FailedTasks:    atomic.LoadUint64(&p.failedTasks),
		RejectedTasks:  atomic.LoadUint64(&p.rejectedTasks),
		AbandonedTasks: atomic.LoadUint64(&p.abandonedTasks),
	}
}

// Stats represents worker pool statistics
type Stats struct {
	Name           string
	MaxWorkers     int
	ActiveWorkers  int
	QueueSize      int
	QueuedTasks    int
	TotalTasks     uint64
	CompletedTasks uint64
	FailedTasks    uint64
	RejectedTasks  uint64
	AbandonedTasks uint64
}

// QueueUtilization returns the queue utilization as a percentage
func (s Stats) QueueUtilization() float64 {
	if s.QueueSize == 0 {
		return 0
	}
	return (float64(s.QueuedTasks) / float64(s.QueueSize)) * 100.0
}
