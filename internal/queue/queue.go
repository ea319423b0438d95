// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package queue is the Write Queue (SPEC_FULL.md §4.5): a single-worker
// FIFO that preserves enqueue order within each of two lanes — urgent
// (commit ticks, reconnect ticks) and normal (everything else) — and
// always drains urgent work first. The wakeup mechanism is grounded on
// the teacher's internal/source/cdc/resolver.go readInto loop (a single
// goroutine blocking until there is something to do), adapted here from
// a single-slot notify.Var to a sync.Cond-guarded FIFO since a write
// queue must preserve every pending entry, not just the latest.
package queue

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Task is one unit of work handed to the worker goroutine.
type Task struct {
	// Urgent entries are drained ahead of any normal entry queued
	// later, matching SPEC_FULL.md §5 "Ordering": commit/reconnect
	// ticks must not be starved by the data stream.
	Urgent bool
	Run    func(ctx context.Context) error
}

// Queue is the Write Queue. The zero value is not usable; construct
// with New.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	urgent []Task
	normal []Task

	stopped bool
	done    chan struct{}

	// OnException is invoked, off the worker goroutine's own call
	// stack unwinding, with any error a Task.Run returns. The default
	// set by New logs at Error and leaves recovery to the caller
	// supplying a Task that itself closes the driver and marks the
	// connection down, per SPEC_FULL.md §4.5's default exception
	// callback.
	OnException func(err error)

	// OnFatal is invoked after recovering a panic that escaped a
	// Task.Run, or by a caller's OnException for an error it judges
	// equally unrecoverable (a ProgrammerError, whether raised by panic
	// or returned as a plain error, gets the same treatment — SPEC_FULL.md
	// §7: these are bugs, not operational failures, and halt rather than
	// retry). The default logs at Fatal, which logrus itself turns into a
	// Critical-level log line followed by os.Exit(1).
	OnFatal func(err error)
}

// New constructs an empty, unstarted Queue.
func New() *Queue {
	q := &Queue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	q.OnException = func(err error) {
		log.WithError(err).Error("write queue task failed")
	}
	q.OnFatal = func(err error) {
		log.WithError(err).Fatal("fatal error in write queue task; halting")
	}
	return q
}

// Enqueue adds t to the normal lane.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.normal = append(q.normal, t)
	q.cond.Signal()
}

// EnqueueUrgent adds t to the urgent lane.
func (q *Queue) EnqueueUrgent(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.urgent = append(q.urgent, t)
	q.cond.Signal()
}

// Len reports the total number of pending entries across both lanes,
// for the Stats Surface's query_queue_items (SPEC_FULL.md §4.9).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.urgent) + len(q.normal)
}

// Run executes the worker loop on the calling goroutine. onStart, if
// non-nil, is called once before the first Task is dequeued — the
// Connection Lifecycle uses this to bind the Identity Registry's
// single-writer assertion (internal/registry.Registry.BindWorker) to
// this exact goroutine. Run returns once Join has been called and
// every pending Task has drained.
func (q *Queue) Run(ctx context.Context, onStart func()) {
	if onStart != nil {
		onStart()
	}
	defer close(q.done)
	for {
		t, ok := q.dequeue()
		if !ok {
			return
		}
		q.runTask(ctx, t)
	}
}

// runTask executes one Task, recovering any panic that escapes it so the
// worker goroutine (and the reconnect/commit timers depending on it)
// survives a single bad Task. A recovered panic is handed to OnFatal
// rather than OnException: SPEC_FULL.md §7 reserves panic-in-process for
// ProgrammerError, which must halt, never be treated as a retryable
// operational failure.
func (q *Queue) runTask(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			q.OnFatal(err)
		}
	}()
	if err := t.Run(ctx); err != nil {
		q.OnException(err)
	}
}

func (q *Queue) dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.urgent) == 0 && len(q.normal) == 0 {
		if q.stopped {
			return Task{}, false
		}
		q.cond.Wait()
	}
	if len(q.urgent) > 0 {
		t := q.urgent[0]
		q.urgent = q.urgent[1:]
		return t, true
	}
	t := q.normal[0]
	q.normal = q.normal[1:]
	return t, true
}

// Join stops accepting new work, lets the worker drain everything
// already queued, and blocks until Run has returned. Mirrors the
// teacher's stopper.Context.Stop contract, but unconditionally waits
// for a full drain rather than timing out, since an in-flight COMMIT
// must never be abandoned mid-Task.
func (q *Queue) Join() {
	q.mu.Lock()
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}
