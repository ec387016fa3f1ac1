// Package queue runs requests on a fixed pool of workers and posts their
// results back through a Dispatcher.
//
// Work is grouped by tag. CancelAll(tag) cancels the context of every job
// under the tag and suppresses its delivery, including a delivery already
// posted to the dispatcher but not yet run. No ordering is kept between jobs.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("queue closed")

const (
	defaultWorkers = 4
	backlog        = 256
)

// Func performs one unit of work and returns the callback to deliver, or nil
// for nothing to deliver. It runs on a worker goroutine.
type Func func(ctx context.Context) (deliver func())

// Options configures a Queue.
type Options struct {
	Workers    int
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// Queue is a worker pool with tag-based cancellation.
type Queue struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	jobs       chan *job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	byTag  map[string]map[string]*job
}

type job struct {
	id     string
	tag    string
	run    Func
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
}

func (j *job) markCancelled() {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
	j.cancel()
}

func (j *job) isCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// New starts the workers. Callers must Close the queue.
func New(opts Options) *Queue {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = Inline
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		dispatcher: dispatcher,
		logger:     logger.With("component", "queue"),
		jobs:       make(chan *job, backlog),
		ctx:        ctx,
		cancel:     cancel,
		byTag:      make(map[string]map[string]*job),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Add schedules run under tag and returns the job id. The job's context is
// cancelled when ctx is, when CancelAll(tag) is called, or on Close.
func (q *Queue) Add(ctx context.Context, tag string, run Func) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	jobCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(q.ctx, cancel)
	j := &job{
		id:  uuid.NewString(),
		tag: tag,
		run: run,
		ctx: jobCtx,
		cancel: func() {
			stop()
			cancel()
		},
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		j.cancel()
		return "", ErrClosed
	}
	tagged := q.byTag[tag]
	if tagged == nil {
		tagged = make(map[string]*job)
		q.byTag[tag] = tagged
	}
	tagged[j.id] = j
	q.mu.Unlock()

	select {
	case q.jobs <- j:
	case <-q.ctx.Done():
		q.forget(j)
		return "", ErrClosed
	case <-ctx.Done():
		q.forget(j)
		return "", ctx.Err()
	}
	q.logger.Debug("request queued", "tag", tag, "id", j.id)
	return j.id, nil
}

// CancelAll cancels every pending or running job under tag. Their callbacks
// are never delivered.
func (q *Queue) CancelAll(tag string) int {
	q.mu.Lock()
	tagged := q.byTag[tag]
	delete(q.byTag, tag)
	q.mu.Unlock()

	for _, j := range tagged {
		j.markCancelled()
	}
	if len(tagged) > 0 {
		q.logger.Debug("requests cancelled", "tag", tag, "count", len(tagged))
	}
	return len(tagged)
}

// Pending reports how many jobs under tag have not finished.
func (q *Queue) Pending(tag string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byTag[tag])
}

// Close stops accepting work, cancels outstanding jobs and waits for the
// workers to exit. Jobs still waiting in the backlog are dropped undelivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case j := <-q.jobs:
			q.runJob(j)
		}
	}
}

func (q *Queue) runJob(j *job) {
	if j.isCancelled() || q.ctx.Err() != nil {
		q.forget(j)
		return
	}

	deliver := q.safeRun(j)
	if deliver == nil || j.isCancelled() {
		q.forget(j)
		return
	}
	// The job stays registered under its tag until the callback runs, so
	// CancelAll can still suppress it.
	q.dispatcher.Post(func() {
		defer q.forget(j)
		if j.isCancelled() {
			return
		}
		deliver()
	})
}

func (q *Queue) safeRun(j *job) (deliver func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("request panicked", "tag", j.tag, "id", j.id, "panic", r)
			deliver = nil
		}
	}()
	return j.run(j.ctx)
}

func (q *Queue) forget(j *job) {
	q.mu.Lock()
	if tagged := q.byTag[j.tag]; tagged != nil {
		delete(tagged, j.id)
		if len(tagged) == 0 {
			delete(q.byTag, j.tag)
		}
	}
	q.mu.Unlock()
	// Release the job context; this does not mark the job cancelled.
	j.cancel()
}

// Dispatch posts fn through the queue's dispatcher without running a job.
func (q *Queue) Dispatch(fn func()) {
	q.dispatcher.Post(fn)
}
