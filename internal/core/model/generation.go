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

import "fmt"

// Provider identifies an external video generation service.
type Provider string

const (
	ProviderKieAI  Provider = "kie.ai"
	ProviderDefAPI Provider = "defapi.org"
)

// ModelName identifies a generation endpoint variant offered by a provider.
type ModelName string

const (
	ModelVeo31Fast    ModelName = "veo-3.1-fast"
	ModelVeo31Quality ModelName = "veo-3.1-quality"
	ModelSora2        ModelName = "sora-2"
	ModelSora2Pro     ModelName = "sora-2-pro"
	ModelDefAPIVeo31  ModelName = "defapi-veo-3.1"
	ModelDefAPISora2  ModelName = "defapi-sora-2"
)

// Session defaults applied when a request leaves a field empty.
const (
	DefaultProvider       = ProviderKieAI
	DefaultModel          = ModelVeo31Fast
	DefaultStrategy       = StrategySegments
	MaxVariantsPerSession = 10
)

// Strategy selects how the source video is cut into clips.
type Strategy string

const (
	// StrategySegments generates one clip per segment and chains them.
	StrategySegments Strategy = "segments"
	// StrategySeamless generates a single clip covering the whole video.
	StrategySeamless Strategy = "seamless"
)

// IsSora reports whether prompts for this model should follow the Sora style.
func (m ModelName) IsSora() bool {
	return m == ModelSora2 || m == ModelSora2Pro || m == ModelDefAPISora2
}

// GenerationRequest is built for every clip attempt and discarded afterwards.
type GenerationRequest struct {
	Prompt         string
	Provider       Provider
	Model          ModelName
	SeedImage      string // Local path of the product image or the previous clip's last frame.
	TargetDuration float64
	SessionID      string
	SlotIndex      int // Unique per (variant, clip) pair.
	VariantIndex   int
	ClipIndex      int
	Visual         VisualProfile
}

// OutputName is the logical file name of the clip produced for this request.
func (r GenerationRequest) OutputName() string {
	return ClipFileName(r.VariantIndex, r.ClipIndex)
}

// ClipFileName names the artifact of one (variant, clip) slot.
func ClipFileName(variant, clip int) string {
	return fmt.Sprintf("variant_%02d_clip_%02d.mp4", variant, clip)
}

// GenerationResult is the terminal outcome of one GenerationRequest.
type GenerationResult struct {
	Success      bool      `json:"success"`
	VideoPath    string    `json:"video_path,omitempty"`
	Error        string    `json:"error,omitempty"`
	CostEstimate float64   `json:"cost_estimate"`
	Provider     Provider  `json:"provider"`
	Model        ModelName `json:"model"`
}
