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
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
)

// SessionPurger removes everything stored for a session.
type SessionPurger interface {
	Purge(ctx context.Context, sessionID string) error
}

// SessionJanitor periodically deletes sessions older than MaxAge, together
// with their artifacts and job state. Sessions whose run is queued, running
// or waiting to retry are kept.
type SessionJanitor struct {
	Sessions services.SessionStore
	Jobs     services.JobStore
	Purger   SessionPurger
	MaxAge   time.Duration
	Interval time.Duration
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (j *SessionJanitor) Run(ctx context.Context) {
	if j.MaxAge <= 0 || j.Interval <= 0 {
		slog.InfoContext(ctx, "session janitor disabled")
		return
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		if n, err := j.Sweep(ctx, time.Now().UTC()); err != nil {
			slog.WarnContext(ctx, "session sweep failed", "error", err)
		} else if n > 0 {
			slog.InfoContext(ctx, "expired sessions removed", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep removes the sessions, and orphaned jobs, last touched before now-MaxAge.
func (j *SessionJanitor) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-j.MaxAge)
	sessionIDs, err := j.Sessions.ListSessionsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	jobIDs, err := j.Jobs.ListOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	removed := 0
	for _, id := range append(sessionIDs, jobIDs...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if state, err := j.Jobs.Get(ctx, id); err == nil && !state.Status.IsTerminal() {
			continue
		}
		if err := j.Purger.Purge(ctx, id); err != nil {
			slog.WarnContext(ctx, "could not remove expired session", "session_id", id, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
