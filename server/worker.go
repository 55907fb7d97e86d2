package server

import (
	"errors"
	"fmt"
	"sync"
)

var errStopped = errors.New("worker stopped")

// request is a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func(*Index) any
	done chan result
}

type result struct {
	value any
	err   error
}

// Worker serializes all Index access through a single goroutine.
// LSP handlers run concurrently; every read or update of document
// state goes through Do.
type Worker struct {
	index    *Index
	requests chan request
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(ix *Index) *Worker {
	w := &Worker{
		index:    ix,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn against the index, recovering from panics.
func (w *Worker) execute(fn func(*Index) any) result {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("%v", r)
			}
		}()
		res.value = fn(w.index)
	}()
	return res
}

// Do submits fn for execution on the worker goroutine and blocks until
// it completes. A panic inside fn is returned as an error.
func (w *Worker) Do(fn func(*Index) any) (any, error) {
	select {
	case <-w.quit:
		return nil, errStopped
	default:
	}
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		return nil, errStopped
	}
}

// Stop shuts down the worker goroutine. Later calls do nothing.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
