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

// Package prompts turns a source video and its clip segments into one text
// prompt per clip, styled for the target generation model.
package prompts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// ErrPromptCount is returned when the model answers with a different number
// of clips than it was asked for.
var ErrPromptCount = errors.New("prompt count does not match segment count")

// Request is everything a generator needs to write the prompts of one run.
type Request struct {
	VideoPath   string
	ProductName string
	Model       model.ModelName
	Duration    float64
	Segments    []model.ClipSegment
	Scenes      []model.TimeSpan
}

// Generator writes the prompt plan of a run.
type Generator interface {
	Generate(ctx context.Context, req Request) (*model.PromptPlan, error)
}

// Validate checks that plan has exactly one prompt per segment, reorders the
// clips by index and copies the shared visual profile onto every clip.
func Validate(plan *model.PromptPlan, segments []model.ClipSegment) error {
	if plan == nil {
		return errors.New("empty prompt plan")
	}
	if len(plan.Clips) != len(segments) {
		return fmt.Errorf("%w: got %d prompts for %d segments", ErrPromptCount, len(plan.Clips), len(segments))
	}
	ordered := make([]model.ClipPrompt, len(segments))
	seen := make([]bool, len(segments))
	for i, c := range plan.Clips {
		idx := c.ClipIndex
		if idx < 0 || idx >= len(segments) || seen[idx] {
			// Fall back to positional binding when indices are unusable.
			idx = i
			if seen[idx] {
				return fmt.Errorf("%w: duplicate clip index %d", ErrPromptCount, c.ClipIndex)
			}
		}
		if c.Prompt == "" {
			return fmt.Errorf("clip %d has an empty prompt", idx)
		}
		c.ClipIndex = idx
		if c.Visual == (model.VisualProfile{}) {
			c.Visual = plan.Visual
		}
		ordered[idx] = c
		seen[idx] = true
	}
	plan.Clips = ordered
	return nil
}
