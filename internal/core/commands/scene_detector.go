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
	"log/slog"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// SceneDetectorCommand finds the scene cuts of the source video. A detection
// failure is logged and the run continues without scene alignment.
type SceneDetectorCommand struct {
	cor.BaseCommand
	detector SceneDetector
}

func NewSceneDetectorCommand(name string, detector SceneDetector) *SceneDetectorCommand {
	out := &SceneDetectorCommand{BaseCommand: *cor.NewBaseCommand(name), detector: detector}
	out.InputParamName = SourceKey
	out.OutputParamName = ScenesKey
	return out
}

func (c *SceneDetectorCommand) Execute(context cor.Context) {
	ctx := context.GetContext()
	video := context.Get(c.GetInputParam()).(*model.SourceVideo)
	tracker := trackerFrom(context)

	if err := tracker.Update(ctx, model.JobAnalyzing, ProgressScenesStart, "Detecting scenes...", nil); err != nil {
		c.Fail(context, err)
		return
	}

	scenes, err := c.detector.Detect(ctx, video.LocalPath, video.Duration)
	if err != nil {
		if ctx.Err() != nil {
			c.Fail(context, fmt.Errorf("detecting scenes: %w", err))
			return
		}
		slog.WarnContext(ctx, "scene detection failed, continuing without scene cuts", "path", video.LocalPath, "error", err)
		scenes = nil
	}
	if scenes == nil {
		scenes = make([]model.TimeSpan, 0)
	}

	if err := tracker.Update(ctx, model.JobAnalyzing, ProgressScenesDone, fmt.Sprintf("Detected %d scenes", len(scenes)), func(s *model.JobState) {
		s.SceneCount = len(scenes)
	}); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), scenes)
}
