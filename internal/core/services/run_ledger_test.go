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

package services_test

import (
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
)

func TestNewRunRecord(t *testing.T) {
	task := &model.PipelineTask{
		SessionID:   "s1",
		NumVariants: 2,
		Provider:    model.Provider("kie.ai"),
		Model:       model.ModelName("veo-3.1-fast"),
		Attempt:     2,
	}
	state := model.NewJobState("s1", 2)
	state.Status = model.JobCompleted
	state.Attempt = 2
	state.VariantsCompleted = 1
	state.TotalCost = 1.2
	state.OriginalDuration = 16
	state.UpdatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	full := &model.VariantResult{VariantIndex: 0, Clips: []*model.ClipResult{
		{Status: model.ClipCompleted, Cost: 0.4},
		{Status: model.ClipCompleted, Cost: 0.4},
	}}
	partial := &model.VariantResult{VariantIndex: 1, Clips: []*model.ClipResult{
		{Status: model.ClipCompleted, Cost: 0.4},
		{Status: model.ClipFailed},
	}}
	state.Variants = append(state.Variants, full, partial)

	rec := services.NewRunRecord(task, state)
	assert.NotNil(t, rec)
	assert.Equal(t, rec.SessionID, "s1")
	assert.Equal(t, rec.Status, "completed")
	assert.Equal(t, rec.Provider, "kie.ai")
	assert.Equal(t, rec.Model, "veo-3.1-fast")
	assert.Equal(t, rec.NumVariants, 2)
	assert.Equal(t, rec.VariantsCompleted, 1)
	assert.Equal(t, rec.ClipsTotal, 4)
	assert.Equal(t, rec.ClipsFailed, 1)
	assert.Equal(t, rec.Attempt, 2)
	assert.Equal(t, rec.FinishedAt, state.UpdatedAt)
	assert.Equal(t, rec.Error, "")
}

func TestNewRunRecordFailedRun(t *testing.T) {
	task := &model.PipelineTask{SessionID: "s2", NumVariants: 1}
	state := model.NewJobState("s2", 1)
	state.Status = model.JobFailed
	state.Error = "Pipeline failed: no scenes"

	rec := services.NewRunRecord(task, state)
	assert.Equal(t, rec.Status, "failed")
	assert.Equal(t, rec.ClipsTotal, 0)
	assert.Equal(t, rec.Error, "Pipeline failed: no scenes")
}
