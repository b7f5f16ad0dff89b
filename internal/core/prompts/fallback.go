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

package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// TemplatePromptGenerator writes prompts without a language model, from the
// product name and the segment timings alone. It is used when no Gemini
// credentials are configured.
type TemplatePromptGenerator struct {
	Visual model.VisualProfile
}

// DefaultVisual is the look used by the TemplatePromptGenerator.
var DefaultVisual = model.VisualProfile{
	Person:     "friendly presenter in casual clothes",
	Background: "clean, softly lit home interior",
	Camera:     "handheld medium close-up, 35mm, shallow depth of field",
	Lighting:   "soft window light from camera left, warm fill",
}

var templateActions = []string{
	"holds %s up to the camera, label facing the lens",
	"demonstrates %s in use, close-up on the hands",
	"sets %s down on the counter and smiles at the camera",
	"points at %s while talking to the camera",
}

func (g *TemplatePromptGenerator) Generate(_ context.Context, req Request) (*model.PromptPlan, error) {
	visual := g.Visual
	if visual == (model.VisualProfile{}) {
		visual = DefaultVisual
	}
	product := strings.TrimSpace(req.ProductName)
	plan := &model.PromptPlan{Visual: visual, Clips: make([]model.ClipPrompt, 0, len(req.Segments))}
	for i, seg := range req.Segments {
		action := fmt.Sprintf(templateActions[i%len(templateActions)], product)
		var prompt string
		if req.Model.IsSora() {
			prompt = fmt.Sprintf("%s product video. The %s %s. %s.\n\nCinematography:\nCamera shot: %s\nMood: upbeat, authentic\n\nActions:\n- %s",
				product, visual.Person, action, visual.Background, visual.Camera, action)
		} else {
			prompt = fmt.Sprintf("%s, %s %s, %s, %s. %s advertisement, cinematic commercial look.",
				visual.Camera, visual.Person, action, visual.Background, visual.Lighting, product)
		}
		plan.Clips = append(plan.Clips, model.ClipPrompt{ClipIndex: seg.Index, Prompt: prompt, Visual: visual})
	}
	if err := Validate(plan, req.Segments); err != nil {
		return nil, err
	}
	return plan, nil
}
