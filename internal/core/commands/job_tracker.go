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

package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// Progress milestones of the pipeline, in percent.
const (
	ProgressDownloadStart  = 5.0
	ProgressDownloaded     = 15.0
	ProgressScenesStart    = 20.0
	ProgressScenesDone     = 30.0
	ProgressSegmented      = 35.0
	ProgressPromptsStart   = 50.0
	ProgressPromptsDone    = 60.0
	ProgressGenerationSpan = 30.0
	ProgressFinalizing     = 90.0
	ProgressComplete       = 100.0
)

// FailedStep is the current step recorded on a failed job.
const FailedStep = "Pipeline failed"

// JobTracker serializes every write to one session's JobState. Progress
// never moves backwards and each change is persisted before the call returns.
type JobTracker struct {
	mu         sync.Mutex
	store      JobStore
	state      *model.JobState
	totalClips int
	doneClips  int
	closed     bool
}

// NewJobTracker takes ownership of state.
func NewJobTracker(store JobStore, state *model.JobState) *JobTracker {
	return &JobTracker{store: store, state: state}
}

// Snapshot returns a deep copy of the current state.
func (t *JobTracker) Snapshot() *model.JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// persist must be called with t.mu held.
func (t *JobTracker) persist(ctx context.Context) error {
	t.state.UpdatedAt = time.Now().UTC()
	if err := t.store.Save(context.WithoutCancel(ctx), t.state.Clone()); err != nil {
		return fmt.Errorf("saving job state: %w", err)
	}
	return nil
}

// Update moves the job to status and step, raising progress to at least
// progress. mutate, when set, edits the state under the lock.
func (t *JobTracker) Update(ctx context.Context, status model.JobStatus, progress float64, step string, mutate func(*model.JobState)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.state.Status = status
	if progress > t.state.Progress {
		t.state.Progress = progress
	}
	if step != "" {
		t.state.CurrentStep = step
	}
	if mutate != nil {
		mutate(t.state)
	}
	return t.persist(ctx)
}

// StartGeneration sets the number of clips the generating phase will produce.
func (t *JobTracker) StartGeneration(ctx context.Context, totalClips int, step string) error {
	t.mu.Lock()
	t.totalClips = totalClips
	t.doneClips = 0
	t.mu.Unlock()
	return t.Update(ctx, model.JobGenerating, ProgressPromptsDone, step, nil)
}

// ClipStarted records which clip is being generated.
func (t *JobTracker) ClipStarted(ctx context.Context, variant, clip, clipsPerVariant int) error {
	t.mu.Lock()
	variants := t.state.VariantsTotal
	t.mu.Unlock()
	step := fmt.Sprintf("Generating variant %d/%d, clip %d/%d...", variant+1, variants, clip+1, clipsPerVariant)
	return t.Update(ctx, model.JobGenerating, 0, step, nil)
}

// RecordClip appends the outcome of one clip to its variant and advances
// progress by one clip.
func (t *JobTracker) RecordClip(ctx context.Context, variant int, clip *model.ClipResult) error {
	t.mu.Lock()
	t.doneClips++
	progress := ProgressPromptsDone
	if t.totalClips > 0 {
		progress += ProgressGenerationSpan * float64(t.doneClips) / float64(t.totalClips)
	}
	t.mu.Unlock()

	c := *clip
	return t.Update(ctx, model.JobGenerating, progress, "", func(s *model.JobState) {
		v := variantEntry(s, variant)
		v.Clips = append(v.Clips, &c)
		v.Finalize()
		s.TotalCost = totalCost(s)
	})
}

// FinishVariant finalizes a variant and counts it as completed.
func (t *JobTracker) FinishVariant(ctx context.Context, variant int) error {
	return t.Update(ctx, model.JobGenerating, 0, "", func(s *model.JobState) {
		variantEntry(s, variant).Finalize()
		s.VariantsCompleted++
		s.TotalCost = totalCost(s)
	})
}

// Complete marks the job completed. The tracker ignores later writes.
func (t *JobTracker) Complete(ctx context.Context, step string) error {
	err := t.Update(ctx, model.JobCompleted, ProgressComplete, step, func(s *model.JobState) {
		s.Error = ""
		for _, v := range s.Variants {
			v.Finalize()
		}
		s.TotalCost = totalCost(s)
	})
	t.close()
	return err
}

// Fail marks the job failed, keeping the progress reached so far. The
// tracker ignores later writes.
func (t *JobTracker) Fail(ctx context.Context, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	err := t.Update(ctx, model.JobFailed, 0, FailedStep, func(s *model.JobState) {
		s.Error = msg
	})
	t.close()
	return err
}

func (t *JobTracker) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// variantEntry returns the variant with the given index, creating it and
// keeping the list ordered by index.
func variantEntry(s *model.JobState, index int) *model.VariantResult {
	for _, v := range s.Variants {
		if v.VariantIndex == index {
			return v
		}
	}
	v := &model.VariantResult{VariantIndex: index, Clips: make([]*model.ClipResult, 0)}
	s.Variants = append(s.Variants, v)
	sort.Slice(s.Variants, func(i, j int) bool { return s.Variants[i].VariantIndex < s.Variants[j].VariantIndex })
	return v
}

func totalCost(s *model.JobState) float64 {
	total := 0.0
	for _, v := range s.Variants {
		total += v.TotalCost
	}
	return total
}
