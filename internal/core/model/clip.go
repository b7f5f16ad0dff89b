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

// Package model defines the data structures shared by the clone pipeline.
// This file, `clip.go`, holds the clip level types: the segments produced by
// the segmenter, the limits of each generation model and the prompts that the
// prompt generator binds to every segment.
package model

// Pacing tells the generation provider whether spoken content must be
// compressed or stretched to fit the fixed clip duration.
type Pacing string

const (
	PacingNormal         Pacing = "normal"
	PacingSlightlyFaster Pacing = "slightly_faster"
	PacingSlightlySlower Pacing = "slightly_slower"
)

// ClipSegment is one time window of the source video. Segments are computed
// once per session and never mutated afterwards.
type ClipSegment struct {
	Index          int     `json:"index"`           // 0-based position, order is significant.
	StartTime      float64 `json:"start_time"`      // Seconds from the start of the source video.
	EndTime        float64 `json:"end_time"`        // Always greater than StartTime.
	Duration       float64 `json:"duration"`        // EndTime - StartTime.
	TargetDuration float64 `json:"target_duration"` // Duration requested from the provider, never above the model maximum.
	Pacing         Pacing  `json:"pacing"`
	PacingNote     string  `json:"pacing_note,omitempty"` // Only ever set on the first clip.
}

// ModelLimits is the max/min/default single clip duration triple of a model.
type ModelLimits struct {
	MaxDuration     float64 `json:"max_duration"`
	MinDuration     float64 `json:"min_duration"`
	DefaultDuration float64 `json:"default_duration"`
}

// VisualProfile carries the descriptions that must stay identical across all
// clips of one variant. The pipeline passes them through untouched.
type VisualProfile struct {
	Person     string `json:"person"`
	Background string `json:"background"`
	Camera     string `json:"camera"`
	Lighting   string `json:"lighting"`
}

// ClipPrompt is the text prompt bound to the ClipSegment with the same index.
type ClipPrompt struct {
	ClipIndex      int           `json:"clip_index"`
	Prompt         string        `json:"prompt"`
	TranscriptText string        `json:"transcript_text"`
	Visual         VisualProfile `json:"visual"`
}

// TimeSpan is a start/end pair in seconds, as returned by scene detection.
type TimeSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
