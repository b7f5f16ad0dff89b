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

package model

import (
	"errors"
	"time"
)

// ErrJobNotFound is returned by job stores for a session without a job.
var ErrJobNotFound = errors.New("job not found")

// JobStatus is the coarse lifecycle stage of a session's pipeline run.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobDownloading JobStatus = "downloading"
	JobAnalyzing   JobStatus = "analyzing"
	JobGenerating  JobStatus = "generating"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ClipStatus is the outcome of a single clip inside a variant.
type ClipStatus string

const (
	ClipCompleted ClipStatus = "completed"
	ClipFailed    ClipStatus = "failed"
)

// VariantStatus aggregates the clips of one variant.
type VariantStatus string

const (
	VariantCompleted VariantStatus = "completed"
	VariantPartial   VariantStatus = "partial"
)

// ClipResult is the recorded outcome of one clip of a variant.
type ClipResult struct {
	ClipIndex int        `json:"clip_index"`
	Duration  float64    `json:"duration"`
	Prompt    string     `json:"prompt"`
	VideoURL  string     `json:"video_url,omitempty"`
	Status    ClipStatus `json:"status"`
	Cost      float64    `json:"cost"`
	Error     string     `json:"error,omitempty"`
	Chained   bool       `json:"chained"` // Seeded from the previous clip's last frame.
}

// VariantResult is the ordered list of clip outcomes of one variant.
type VariantResult struct {
	VariantIndex int           `json:"variant_index"`
	Clips        []*ClipResult `json:"clips"`
	Status       VariantStatus `json:"status"`
	TotalCost    float64       `json:"total_cost"`
}

// Finalize recomputes the aggregate status and cost from the clip list.
func (v *VariantResult) Finalize() {
	v.Status = VariantCompleted
	v.TotalCost = 0
	for _, c := range v.Clips {
		if c.Status != ClipCompleted {
			v.Status = VariantPartial
		}
		v.TotalCost += c.Cost
	}
}

// JobState is the single externally visible record of a session's progress.
type JobState struct {
	SessionID         string           `json:"session_id"`
	Status            JobStatus        `json:"status"`
	Progress          float64          `json:"progress"`
	CurrentStep       string           `json:"current_step"`
	Error             string           `json:"error,omitempty"`
	Variants          []*VariantResult `json:"variants"`
	TotalCost         float64          `json:"total_cost"`
	VariantsCompleted int              `json:"variants_completed"`
	VariantsTotal     int              `json:"variants_total"`
	SceneCount        int              `json:"scene_count"`
	OriginalDuration  float64          `json:"original_duration"`
	Attempt           int              `json:"attempt"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewJobState returns the pending record created when a session is started.
func NewJobState(sessionID string, variants int) *JobState {
	return &JobState{
		SessionID:     sessionID,
		Status:        JobPending,
		CurrentStep:   "Queued",
		Variants:      make([]*VariantResult, 0),
		VariantsTotal: variants,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Clone returns a deep copy so that readers never share memory with the writer.
func (j *JobState) Clone() *JobState {
	if j == nil {
		return nil
	}
	out := *j
	out.Variants = make([]*VariantResult, 0, len(j.Variants))
	for _, v := range j.Variants {
		if v == nil {
			continue
		}
		vc := *v
		vc.Clips = make([]*ClipResult, 0, len(v.Clips))
		for _, c := range v.Clips {
			cc := *c
			vc.Clips = append(vc.Clips, &cc)
		}
		out.Variants = append(out.Variants, &vc)
	}
	return &out
}
