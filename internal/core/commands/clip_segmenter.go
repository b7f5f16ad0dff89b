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
	"github.com/jaycherian/gcp-go-video-clone/internal/core/segment"
)

// ClipSegmenter cuts the source video into the clip windows of the
// selected model, aligned to the detected scenes.
type ClipSegmenter struct {
	cor.BaseCommand
}

func NewClipSegmenter(name string) *ClipSegmenter {
	out := &ClipSegmenter{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = ScenesKey
	out.OutputParamName = SegmentsKey
	return out
}

func (c *ClipSegmenter) Execute(context cor.Context) {
	ctx := context.GetContext()
	task := taskFrom(context)
	tracker := trackerFrom(context)
	video := context.Get(SourceKey).(*model.SourceVideo)
	scenes := context.Get(c.GetInputParam()).([]model.TimeSpan)

	if video.Duration <= 0 {
		c.Fail(context, &segment.SegmentationError{Duration: video.Duration, Reason: "source video has no duration"})
		return
	}

	limits := segment.LimitsFor(task.Model)
	var segments []model.ClipSegment
	var err error
	if task.Strategy == model.StrategySeamless {
		segments, err = segment.Single(video.Duration, limits)
	} else {
		segments, err = segment.Calculate(video.Duration, limits, segment.SceneBoundaries(scenes))
	}
	if err != nil {
		c.Fail(context, err)
		return
	}

	if err := tracker.Update(ctx, model.JobAnalyzing, ProgressSegmented, fmt.Sprintf("Planned %d clips", len(segments)), nil); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), segments)
}
