package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped is returned by Do after Stop.
var ErrPoolStopped = errors.New("audio worker pool stopped")

type poolTask struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// WorkerPool runs blocking decode, encode and effect work on a fixed number
// of goroutines so request handlers only wait on a channel.
type WorkerPool struct {
	tasks    chan *poolTask
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool starts workers goroutines with a queue of queueSize pending tasks.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		tasks:    make(chan *poolTask, queueSize),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.tasks:
			// 调用方已放弃等待的任务直接跳过
			if err := task.ctx.Err(); err != nil {
				task.done <- err
				continue
			}
			task.done <- task.fn(task.ctx)
		case <-p.stopChan:
			return
		}
	}
}

// Do runs fn on a worker and waits for its result. It returns early with the
// context error if ctx ends while the task is queued or running.
func (p *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	task := &poolTask{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case p.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopChan:
		return ErrPoolStopped
	}

	select {
	case err := <-task.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopChan:
		p.wg.Wait()
		select {
		case err := <-task.done:
			return err
		default:
			return ErrPoolStopped
		}
	}
}

// Stop terminates the workers after their current task. Queued tasks are
// abandoned; their callers return through their own contexts.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}
