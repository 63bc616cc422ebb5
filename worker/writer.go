////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package worker contains the single writer that serialises every mutation of
// the conversation store.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// ErrStopped is returned for jobs posted after the Writer is stopped.
var ErrStopped = errors.New("writer is stopped")

// Job is a unit of work run by the Writer.
type Job func() error

type queuedJob struct {
	tag    Tag
	job    Job
	future *Future
}

// Writer runs jobs one at a time, in the order they were posted, on a single
// goroutine.
type Writer struct {
	// queue holds jobs waiting to be run.
	queue chan queuedJob

	// done is closed once the process thread has exited.
	done chan struct{}

	// name describes the writer. It is used for debugging and logging
	// purposes.
	name string

	// messageLogging determines if debug logs should be printed for every
	// job.
	messageLogging bool

	stopped bool
	mux     sync.RWMutex
}

// NewWriter starts a new Writer.
func NewWriter(name string, p Params) *Writer {
	if p.QueueSize < 0 {
		p.QueueSize = 0
	}
	w := &Writer{
		queue:          make(chan queuedJob, p.QueueSize),
		done:           make(chan struct{}),
		name:           name,
		messageLogging: p.MessageLogging,
	}

	go w.processThread()

	return w
}

// Post queues the job and returns a Future that resolves with its result.
// Post blocks while the queue is full.
func (w *Writer) Post(tag Tag, job Job) *Future {
	f := newFuture(tag)

	w.mux.RLock()
	defer w.mux.RUnlock()
	if w.stopped {
		f.resolve(ErrStopped)
		return f
	}

	if w.messageLogging {
		jww.DEBUG.Printf("[WW] [%s] Queueing job for %q", w.name, tag)
	}
	w.queue <- queuedJob{tag: tag, job: job, future: f}
	return f
}

// Do posts the job and waits for it to finish.
func (w *Writer) Do(tag Tag, job Job) error {
	return w.Post(tag, job).Wait()
}

// Len returns the number of jobs waiting in the queue.
func (w *Writer) Len() int {
	return len(w.queue)
}

// Stop runs all queued jobs and then stops the Writer. Jobs posted after Stop
// resolve with ErrStopped. Stop blocks until the process thread exits.
func (w *Writer) Stop() {
	w.mux.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mux.Unlock()

	<-w.done
}

// processThread runs queued jobs sequentially.
func (w *Writer) processThread() {
	jww.INFO.Printf("[WW] [%s] Starting writer process thread.", w.name)
	defer close(w.done)

	for qj := range w.queue {
		err := w.run(qj)
		if w.messageLogging {
			jww.DEBUG.Printf("[WW] [%s] Finished job for %q: %v",
				w.name, qj.tag, err)
		}
		qj.future.resolve(err)
	}

	jww.INFO.Printf("[WW] [%s] Quitting writer process thread.", w.name)
}

// run calls the job. A panicking job fails only itself.
func (w *Writer) run(qj queuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			jww.ERROR.Printf("[WW] [%s] Job for %q panicked: %v",
				w.name, qj.tag, r)
			err = errors.Errorf("job for %q panicked: %s", qj.tag,
				fmt.Sprint(r))
		}
	}()
	return qj.job()
}

// Future is the pending result of a posted job.
type Future struct {
	tag  Tag
	done chan struct{}
	err  error
}

func newFuture(tag Tag) *Future {
	return &Future{tag: tag, done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Tag returns the tag the job was posted with.
func (f *Future) Tag() Tag {
	return f.tag
}

// Done returns a channel that is closed once the job has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job has finished and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// WaitContext is Wait, but it gives up when the context is done. The job still
// runs to completion.
func (f *Future) WaitContext(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting on %q", f.tag)
	}
}
