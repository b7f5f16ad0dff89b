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
// This file provides hardcoded example instances used for few-shot prompting:
// the prompt generator embeds the JSON of GetExamplePromptPlan in its request
// so that the model answers with the exact structure we unmarshal.
package model

// PromptPlan is the JSON document the prompt generator expects back from the
// language model. Visual is shared by every clip of a variant.
type PromptPlan struct {
	Visual VisualProfile `json:"visual"`
	Clips  []ClipPrompt  `json:"clips"`
}

// GetExamplePromptPlan returns a two clip plan for a skincare product.
func GetExamplePromptPlan() *PromptPlan {
	visual := VisualProfile{
		Person:     "woman in her late twenties, shoulder length dark hair, cream knit sweater",
		Background: "bright bathroom counter, white marble, small plant on the left",
		Camera:     "handheld medium close-up, 35mm, slight push-in",
		Lighting:   "soft window light from camera left, warm fill",
	}
	return &PromptPlan{
		Visual: visual,
		Clips: []ClipPrompt{
			{
				ClipIndex:      0,
				Prompt:         "Handheld medium close-up, the woman lifts the GlowSerum bottle to eye level and smiles, GlowSerum label facing camera, soft window light. She says, \"This GlowSerum changed my mornings.\" (no subtitles)",
				TranscriptText: "This GlowSerum changed my mornings.",
				Visual:         visual,
			},
			{
				ClipIndex:      1,
				Prompt:         "Slow push-in, she presses two drops of GlowSerum onto her fingertips and pats them onto her cheek, GlowSerum bottle on the marble counter. She says, \"Two drops and I'm done.\" (no subtitles)",
				TranscriptText: "Two drops and I'm done.",
				Visual:         visual,
			},
		},
	}
}
