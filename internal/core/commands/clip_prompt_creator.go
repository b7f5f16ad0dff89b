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
	"fmt"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/prompts"
)

// ClipPromptCreator asks the prompt generator for one prompt per segment.
type ClipPromptCreator struct {
	cor.BaseCommand
	generator PromptGenerator
}

func NewClipPromptCreator(name string, generator PromptGenerator) *ClipPromptCreator {
	out := &ClipPromptCreator{BaseCommand: *cor.NewBaseCommand(name), generator: generator}
	out.InputParamName = SegmentsKey
	out.OutputParamName = PlanKey
	return out
}

func promptStyle(m model.ModelName) string {
	if m.IsSora() {
		return "Sora 2"
	}
	return "Veo 3.1"
}

func (c *ClipPromptCreator) Execute(context cor.Context) {
	ctx := context.GetContext()
	task := taskFrom(context)
	tracker := trackerFrom(context)
	video := context.Get(SourceKey).(*model.SourceVideo)
	scenes, _ := context.Get(ScenesKey).([]model.TimeSpan)
	segments := context.Get(c.GetInputParam()).([]model.ClipSegment)

	step := fmt.Sprintf("Analyzing video for %s (%s prompts)...", task.ProductName, promptStyle(task.Model))
	if err := tracker.Update(ctx, model.JobAnalyzing, ProgressPromptsStart, step, nil); err != nil {
		c.Fail(context, err)
		return
	}

	plan, err := c.generator.Generate(ctx, prompts.Request{
		VideoPath:   video.LocalPath,
		ProductName: task.ProductName,
		Model:       task.Model,
		Duration:    video.Duration,
		Segments:    segments,
		Scenes:      scenes,
	})
	if err != nil {
		c.Fail(context, fmt.Errorf("generating prompts: %w", err))
		return
	}
	if err := prompts.Validate(plan, segments); err != nil {
		c.Fail(context, err)
		return
	}

	step = fmt.Sprintf("Generated %d %s prompts", len(plan.Clips), promptStyle(task.Model))
	if err := tracker.Update(ctx, model.JobAnalyzing, ProgressPromptsDone, step, nil); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), plan)
}
