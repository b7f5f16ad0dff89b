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

package commands_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

func TestTrackerProgressIsMonotone(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	tracker := commands.NewJobTracker(store, model.NewJobState("s1", 1))

	require.NoError(t, tracker.Update(ctx, model.JobAnalyzing, 30, "a", nil))
	require.NoError(t, tracker.Update(ctx, model.JobAnalyzing, 20, "b", nil))
	snap := tracker.Snapshot()
	assert.Equal(t, 30.0, snap.Progress)
	assert.Equal(t, "b", snap.CurrentStep)
}

func TestTrackerConcurrentClips(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	tracker := commands.NewJobTracker(store, model.NewJobState("s1", 4))
	require.NoError(t, tracker.StartGeneration(ctx, 12, "go"))

	var wg sync.WaitGroup
	for v := 0; v < 4; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			for c := 0; c < 3; c++ {
				assert.NoError(t, tracker.RecordClip(ctx, v, &model.ClipResult{ClipIndex: c, Status: model.ClipCompleted, Cost: 0.1}))
			}
			assert.NoError(t, tracker.FinishVariant(ctx, v))
		}(v)
	}
	wg.Wait()

	snap := tracker.Snapshot()
	assert.InDelta(t, 90.0, snap.Progress, 1e-9)
	assert.Equal(t, 4, snap.VariantsCompleted)
	require.Len(t, snap.Variants, 4)
	for i, v := range snap.Variants {
		assert.Equal(t, i, v.VariantIndex)
		assert.Len(t, v.Clips, 3)
	}
	assert.InDelta(t, 1.2, snap.TotalCost, 1e-9)
	assertMonotone(t, store.progressHistory())
}

func TestTrackerFailKeepsProgressAndCloses(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	tracker := commands.NewJobTracker(store, model.NewJobState("s1", 1))
	require.NoError(t, tracker.Update(ctx, model.JobGenerating, 75, "working", nil))
	require.NoError(t, tracker.Fail(ctx, errors.New("boom")))

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, state.Status)
	assert.Equal(t, 75.0, state.Progress)
	assert.Equal(t, commands.FailedStep, state.CurrentStep)
	assert.Equal(t, "boom", state.Error)

	writes := len(store.history)
	require.NoError(t, tracker.Update(ctx, model.JobGenerating, 80, "late", nil))
	assert.Len(t, store.history, writes)
}

func TestTrackerReportsStoreErrors(t *testing.T) {
	store := newRecordingStore()
	store.failOn = 1
	tracker := commands.NewJobTracker(store, model.NewJobState("s1", 1))
	assert.Error(t, tracker.Update(context.Background(), model.JobDownloading, 5, "x", nil))
}
