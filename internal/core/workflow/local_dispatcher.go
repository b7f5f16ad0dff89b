// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
)

// ErrQueueFull is returned by Dispatch when every queue slot is taken.
var ErrQueueFull = errors.New("pipeline queue is full")

// ErrDispatcherStopped is returned by Dispatch after Shutdown.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// TaskRunner runs one pipeline attempt.
type TaskRunner interface {
	Run(ctx context.Context, task *model.PipelineTask) error
}

// LocalDispatcher runs pipeline tasks on a fixed pool of goroutines. A
// session is accepted only when it is neither queued nor running, and a
// failed run is retried as a whole after a back-off until the attempt
// budget is spent.
type LocalDispatcher struct {
	runner      TaskRunner
	jobs        services.JobStore
	queue       chan *model.PipelineTask
	workers     int
	maxAttempts int
	backoff     time.Duration

	mu      sync.Mutex
	active  map[string]bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLocalDispatcher creates a dispatcher; call Start before Dispatch.
func NewLocalDispatcher(runner TaskRunner, jobs services.JobStore, workers, queueSize, maxAttempts int, backoff time.Duration) *LocalDispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &LocalDispatcher{
		runner:      runner,
		jobs:        jobs,
		queue:       make(chan *model.PipelineTask, queueSize),
		workers:     workers,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		active:      make(map[string]bool),
	}
}

// Start launches the workers. They stop when ctx is canceled or Shutdown is called.
func (d *LocalDispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	slog.Info("local dispatcher started", "workers", d.workers, "queue", cap(d.queue))
}

// Dispatch queues task without waiting for it to run.
func (d *LocalDispatcher) Dispatch(_ context.Context, task *model.PipelineTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	if d.active[task.SessionID] {
		return services.ErrSessionBusy
	}
	cp := *task
	if cp.Attempt < 1 {
		cp.Attempt = 1
	}
	select {
	case d.queue <- &cp:
		d.active[task.SessionID] = true
		return nil
	default:
		return ErrQueueFull
	}
}

// Busy reports whether the session is queued or running.
func (d *LocalDispatcher) Busy(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[sessionID]
}

// Shutdown stops accepting tasks, cancels running ones and waits for the
// workers to exit or ctx to expire.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *LocalDispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.queue:
			d.process(ctx, task)
			d.release(task.SessionID)
		}
	}
}

func (d *LocalDispatcher) release(sessionID string) {
	d.mu.Lock()
	delete(d.active, sessionID)
	d.mu.Unlock()
}

func (d *LocalDispatcher) process(ctx context.Context, task *model.PipelineTask) {
	for {
		slog.InfoContext(ctx, "pipeline attempt started", "session_id", task.SessionID, "attempt", task.Attempt)
		err := d.runner.Run(ctx, task)
		if err == nil {
			slog.InfoContext(ctx, "pipeline completed", "session_id", task.SessionID, "attempt", task.Attempt)
			return
		}
		if task.Attempt >= d.maxAttempts || Permanent(err) || ctx.Err() != nil {
			slog.ErrorContext(ctx, "pipeline failed", "session_id", task.SessionID, "attempt", task.Attempt, "error", err)
			return
		}

		next := task.Attempt + 1
		d.markRetrying(ctx, task.SessionID, next, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.backoff):
		}
		task.Attempt = next
	}
}

// markRetrying moves the failed job back to pending so that clients see a
// retry is coming and a new Start is refused in the meantime.
func (d *LocalDispatcher) markRetrying(ctx context.Context, sessionID string, next int, cause error) {
	if d.jobs == nil {
		return
	}
	state, err := d.jobs.Get(ctx, sessionID)
	if err != nil {
		slog.WarnContext(ctx, "could not load job before retry", "session_id", sessionID, "error", err)
		return
	}
	state.Status = model.JobPending
	state.CurrentStep = fmt.Sprintf("Retrying in %s (attempt %d/%d)", d.backoff, next, d.maxAttempts)
	state.Error = cause.Error()
	state.UpdatedAt = time.Now().UTC()
	if err := d.jobs.Save(ctx, state); err != nil {
		slog.WarnContext(ctx, "could not record retry", "session_id", sessionID, "error", err)
	}
}
