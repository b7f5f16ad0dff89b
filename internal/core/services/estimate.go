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

package services

import (
	"fmt"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/segment"
)

// Estimate is the expected cost of cloning a video of a given length.
type Estimate struct {
	Provider        model.Provider  `json:"provider"`
	Model           model.ModelName `json:"model"`
	NumVariants     int             `json:"num_variants"`
	Duration        float64         `json:"duration"`
	ClipsPerVariant int             `json:"clips_per_variant"`
	CostPerClip     float64         `json:"cost_per_clip"`
	CostPerVariant  float64         `json:"cost_per_variant"`
	TotalCost       float64         `json:"total_cost"`
}

// EstimateCost multiplies the clip count the segmenter would produce by the
// static price of one clip. The seamless strategy always uses one clip.
func EstimateCost(provider model.Provider, m model.ModelName, strategy model.Strategy, numVariants int, duration float64) (*Estimate, error) {
	if numVariants < 1 || numVariants > model.MaxVariantsPerSession {
		return nil, fmt.Errorf("%w: num_variants must be between 1 and %d", ErrInvalidRequest, model.MaxVariantsPerSession)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	limits := segment.LimitsFor(m)
	var segments []model.ClipSegment
	var err error
	if strategy == model.StrategySeamless {
		segments, err = segment.Single(duration, limits)
	} else {
		segments, err = segment.Calculate(duration, limits, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	perClip := generation.CostFor(provider, m)
	est := &Estimate{
		Provider:        provider,
		Model:           m,
		NumVariants:     numVariants,
		Duration:        duration,
		ClipsPerVariant: len(segments),
		CostPerClip:     perClip,
		CostPerVariant:  perClip * float64(len(segments)),
	}
	est.TotalCost = est.CostPerVariant * float64(numVariants)
	return est, nil
}
