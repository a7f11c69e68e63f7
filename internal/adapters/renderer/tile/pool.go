package tile

import (
	"context"
	"time"
)

// Pool bounds concurrent tile prefetches so camera moves never fan out
// into an unbounded burst of HTTP requests.
type Pool struct {
	workers chan struct{}
	tasks   chan Task
	quit    chan struct{}
}

// Task is one unit of prefetch work. Ctx cancellation abandons the
// task's result; the work itself still runs to completion to warm the
// cache.
type Task struct {
	Ctx  context.Context
	Work func() error
}

// NewPool starts a dispatcher over maxWorkers concurrent workers.
func NewPool(maxWorkers int) *Pool {
	p := &Pool{
		workers: make(chan struct{}, maxWorkers),
		tasks:   make(chan Task, 100),
		quit:    make(chan struct{}),
	}
	go p.dispatcher()
	return p
}

func (p *Pool) dispatcher() {
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			select {
			case p.workers <- struct{}{}:
				go func() {
					defer func() { <-p.workers }()

					done := make(chan error, 1)
					go func() {
						done <- task.Work()
					}()

					select {
					case <-task.Ctx.Done():
					case <-done:
					case <-time.After(10 * time.Second):
					}
				}()
			default:
				// All workers busy: requeue after a beat.
				go func() {
					time.Sleep(100 * time.Millisecond)
					p.Submit(task)
				}()
			}
		}
	}
}

// Submit queues a task, retrying shortly if the queue is full.
func (p *Pool) Submit(task Task) {
	select {
	case p.tasks <- task:
	default:
		go func() {
			time.Sleep(100 * time.Millisecond)
			p.Submit(task)
		}()
	}
}

// Shutdown stops the dispatcher. In-flight tasks finish on their own.
func (p *Pool) Shutdown() {
	close(p.quit)
}
