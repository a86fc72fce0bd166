// Copyright 2026 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue contains a bounded-concurrency task runner with retries and exponential
// backoff. It drives the bulk operations of the CLI, such as recursive deletes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"firebase.google.com/tools/internal/logging"
)

const (
	// DefaultConcurrency is the number of tasks executed at once when Config.Concurrency is not
	// a positive number.
	DefaultConcurrency = 1

	// DefaultBackoff is the base retry delay used when Config.Backoff is negative.
	DefaultBackoff = 200 * time.Millisecond

	defaultName = "queue"
)

// ErrClosed is returned by Add when the queue has already been closed.
var ErrClosed = errors.New("cannot add to a closed queue")

// Handler executes a single task. Returning an error marks the attempt as failed.
type Handler[T any] func(ctx context.Context, task T) error

// Config specifies how a Queue executes its tasks.
//
// Handler is required. Concurrency values below 1 fall back to DefaultConcurrency, negative
// Retries are treated as 0, and a negative Backoff falls back to DefaultBackoff. A zero Backoff
// retries failed tasks immediately.
type Config[T any] struct {
	Name        string
	Concurrency int
	Handler     Handler[T]
	Retries     int
	Backoff     time.Duration

	// MaxBackoff caps the delay between two attempts of the same task. Zero means no cap.
	MaxBackoff time.Duration

	// ShouldRetry reports whether a failed attempt may be retried. If nil, all errors are
	// retried until the task runs out of retries.
	ShouldRetry func(error) bool

	Logger logrus.FieldLogger
}

// Stats is a snapshot of the execution statistics of a Queue.
type Stats struct {
	Max      time.Duration
	Min      time.Duration
	Avg      time.Duration
	Active   int
	Complete int
	Success  int
	Errored  int
	Retried  int
	Total    int
	Elapsed  time.Duration
}

// Queue runs tasks with a bounded number of concurrent handler invocations.
//
// Tasks start in the order they were added. Handlers may call Add and Close on the queue that
// invoked them. A task that fails after exhausting its retries finalizes the whole queue with
// that error; tasks that are already running are left to complete, but no new tasks are started.
type Queue[T any] struct {
	ctx         context.Context
	name        string
	handler     Handler[T]
	concurrency int
	retries     int
	backoff     time.Duration
	maxBackoff  time.Duration
	shouldRetry func(error) bool
	log         logrus.FieldLogger

	mu          sync.Mutex
	tasks       map[int]T
	retryCounts map[int]int
	cursor      int
	total       int
	active      int
	closed      bool
	finished    bool
	err         error
	done        chan struct{}

	complete  int
	success   int
	errored   int
	retried   int
	min       time.Duration
	max       time.Duration
	avg       time.Duration
	startTime time.Time
}

// New creates a new Queue from the given Config.
//
// The context is passed to every handler invocation, and bounds the time spent waiting between
// retries.
func New[T any](ctx context.Context, conf *Config[T]) (*Queue[T], error) {
	if conf == nil || conf.Handler == nil {
		return nil, errors.New("queue handler must not be nil")
	}

	name := conf.Name
	if name == "" {
		name = defaultName
	}
	concurrency := conf.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	retries := conf.Retries
	if retries < 0 {
		retries = 0
	}
	delay := conf.Backoff
	if delay < 0 {
		delay = DefaultBackoff
	}
	maxDelay := conf.MaxBackoff
	if maxDelay < 0 {
		maxDelay = 0
	}
	return &Queue[T]{
		ctx:         ctx,
		name:        name,
		handler:     conf.Handler,
		concurrency: concurrency,
		retries:     retries,
		backoff:     delay,
		maxBackoff:  maxDelay,
		shouldRetry: conf.ShouldRetry,
		log:         logging.OrDiscard(conf.Logger).WithField("queue", name),
		tasks:       make(map[int]T),
		retryCounts: make(map[int]int),
		done:        make(chan struct{}),
		startTime:   time.Now(),
	}, nil
}

// Add appends a task to the queue and starts it if there is spare capacity.
//
// Add never blocks on the execution of other tasks. It returns ErrClosed if the queue has been
// closed.
func (q *Queue[T]) Add(task T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.tasks[q.total] = task
	q.total++
	q.process()
	return nil
}

// Close marks the queue as complete. No tasks can be added after this call. The queue finishes
// as soon as all the tasks added so far have been executed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.finishIfIdle()
}

// Wait blocks until the queue finishes. It returns nil if all tasks succeeded, or the first
// task error that could not be recovered by retrying.
//
// Wait may be called any number of times, including after the queue has finished. If ctx is
// done before the queue finishes, Wait returns the context error; the queue keeps running.
func (q *Queue[T]) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Max:      q.max,
		Min:      q.min,
		Avg:      q.avg,
		Active:   q.active,
		Complete: q.complete,
		Success:  q.success,
		Errored:  q.errored,
		Retried:  q.retried,
		Total:    q.total,
		Elapsed:  time.Since(q.startTime),
	}
}

// TaskName returns a printable name for the task at the given index.
func (q *Queue[T]) TaskName(index int) string {
	q.mu.Lock()
	task, ok := q.tasks[index]
	q.mu.Unlock()
	if ok {
		switch t := any(task).(type) {
		case string:
			return t
		case fmt.Stringer:
			return t.String()
		}
	}
	return fmt.Sprintf("index %d", index)
}

// process starts as many pending tasks as the concurrency limit allows. Must be called with
// q.mu held.
func (q *Queue[T]) process() {
	if q.finishIfIdle() || q.finished {
		return
	}
	for q.active < q.concurrency && q.cursor < q.total {
		index := q.cursor
		q.cursor++
		q.active++
		go q.handle(index, q.tasks[index])
	}
}

// finishIfIdle finalizes the queue if it is closed and has no pending or running tasks. Must be
// called with q.mu held.
func (q *Queue[T]) finishIfIdle() bool {
	if q.closed && q.cursor == q.total && q.active == 0 {
		q.finish(nil)
		return true
	}
	return false
}

// finish settles all current and future waiters. Only the first call has any effect. Must be
// called with q.mu held.
func (q *Queue[T]) finish(err error) {
	if q.finished {
		return
	}
	q.finished = true
	q.err = err
	close(q.done)
	if err != nil {
		q.log.WithError(err).Debug("queue failed")
		return
	}
	q.log.WithFields(logrus.Fields{
		"complete": q.complete,
		"retried":  q.retried,
		"elapsed":  time.Since(q.startTime).String(),
	}).Debug("queue finished")
}

func (q *Queue[T]) handle(index int, task T) {
	var delays *backoff.ExponentialBackOff
	for {
		t0 := time.Now()
		err := q.handler(q.ctx, task)
		dt := time.Since(t0)

		if err == nil {
			q.mu.Lock()
			q.recordLatency(dt)
			q.success++
			q.complete++
			q.active--
			delete(q.tasks, index)
			delete(q.retryCounts, index)
			q.process()
			q.mu.Unlock()
			return
		}

		q.mu.Lock()
		attempt, retry := q.retryCounts[index], false
		if attempt < q.retries && (q.shouldRetry == nil || q.shouldRetry(err)) {
			attempt++
			q.retryCounts[index] = attempt
			q.retried++
			retry = true
		}
		q.mu.Unlock()

		if retry {
			if delays == nil {
				delays = q.newBackOff()
			}
			wait := delays.NextBackOff()
			q.log.WithFields(logrus.Fields{
				"task":    q.TaskName(index),
				"attempt": attempt,
				"delay":   wait.String(),
			}).WithError(err).Debug("retrying task")
			serr := q.sleep(wait)
			if serr == nil {
				continue
			}
			err = fmt.Errorf("%w (retry aborted: %w)", err, serr)
		}

		q.mu.Lock()
		q.errored++
		q.complete++
		q.active--
		delete(q.tasks, index)
		delete(q.retryCounts, index)
		q.finish(err)
		q.mu.Unlock()
		return
	}
}

// newBackOff returns the delay schedule of a single task: backoff * 2^n for the n-th retry.
func (q *Queue[T]) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * q.backoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	if q.maxBackoff > 0 {
		b.MaxInterval = q.maxBackoff
		if b.InitialInterval > q.maxBackoff {
			b.InitialInterval = q.maxBackoff
		}
	}
	b.Reset()
	return b
}

func (q *Queue[T]) sleep(d time.Duration) error {
	if d <= 0 {
		return q.ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-q.ctx.Done():
		return q.ctx.Err()
	}
}

// recordLatency updates the latency statistics. Must be called with q.mu held, before the
// success and complete counters are incremented.
func (q *Queue[T]) recordLatency(dt time.Duration) {
	if q.success == 0 || dt < q.min {
		q.min = dt
	}
	if dt > q.max {
		q.max = dt
	}
	q.avg = (q.avg*time.Duration(q.complete) + dt) / time.Duration(q.complete+1)
}
