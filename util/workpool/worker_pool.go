// Package workpool runs a work function on a fixed number of goroutines with
// early termination. Where the work comes from (a channel, a slice, a queue) is
// up to the handler.
package workpool

import (
	"context"
	"sync"
)

// WorkHandler is a blocking call which retrieves and processes work. It should
// process a single piece of work and return true, or return false when no work
// is left. The pool keeps calling a handler until it returns false or the pool
// is cancelled.
//
// done is closed when the pool is cancelled and the handler should return as
// soon as possible.
//
// A handler consuming a channel:
//
//	func sq(input <-chan int, output chan<- int) WorkHandler {
//		return func(done <-chan struct{}) bool {
//			select {
//			case n, ok := <-input:
//				if !ok {
//					return false
//				}
//				output <- n * n
//				return true
//			case <-done:
//				return false
//			}
//		}
//	}
type WorkHandler func(done <-chan struct{}) bool

// New creates a worker pool with a given handler function.
func New(numWorkers int, handler WorkHandler) *WorkPool {
	return &WorkPool{
		Handler: handler,
		Workers: numWorkers,
		done:    make(chan struct{}),
	}
}

// NewWithClose creates a worker pool with a given handler function and a
// function to call when the pool exits.
func NewWithClose(numWorkers int, handler WorkHandler, close func()) *WorkPool {
	p := New(numWorkers, handler)
	p.Close = close
	return p
}

// WorkPool runs a WorkHandler in some number of goroutines.
type WorkPool struct {
	Handler WorkHandler
	Workers int
	Close   func()

	once   sync.Once
	cancel sync.Once
	done   chan struct{}
}

func (p *WorkPool) init() {
	p.once.Do(func() {
		if p.done == nil {
			p.done = make(chan struct{})
		}
	})
}

// Run starts the workers and blocks until all work has been processed or the
// pool is cancelled. Close, when set, is called before returning.
func (p *WorkPool) Run() {
	p.init()
	if p.Close != nil {
		defer p.Close()
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-p.done:
					return
				default:
					if !p.Handler(p.done) {
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

// RunContext is Run, cancelled when ctx is done. It returns ctx.Err() if the
// context ended before the work did.
func (p *WorkPool) RunContext(ctx context.Context) error {
	p.init()
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.Cancel()
		case <-finished:
		}
	}()
	p.Run()
	close(finished)
	return ctx.Err()
}

// Cancel signals the workers to stop. It is safe to call more than once and
// from any goroutine.
func (p *WorkPool) Cancel() {
	p.init()
	p.cancel.Do(func() { close(p.done) })
}
