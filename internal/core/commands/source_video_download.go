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

// SourceVideoDownload fetches the source video into the work directory.
type SourceVideoDownload struct {
	cor.BaseCommand
	source VideoSource
}

func NewSourceVideoDownload(name string, source VideoSource) *SourceVideoDownload {
	out := &SourceVideoDownload{BaseCommand: *cor.NewBaseCommand(name), source: source}
	out.InputParamName = TaskKey
	out.OutputParamName = SourceKey
	return out
}

func (c *SourceVideoDownload) Execute(context cor.Context) {
	ctx := context.GetContext()
	task := taskFrom(context)
	tracker := trackerFrom(context)
	dir, _ := context.Get(WorkDirKey).(string)

	if err := tracker.Update(ctx, model.JobDownloading, ProgressDownloadStart, "Downloading source video...", nil); err != nil {
		c.Fail(context, err)
		return
	}

	video, err := c.source.Download(ctx, task.SourceURL, dir)
	if err != nil {
		c.Fail(context, fmt.Errorf("downloading source video: %w", err))
		return
	}
	slog.InfoContext(ctx, "source video ready", "session_id", task.SessionID, "path", video.LocalPath, "duration", video.Duration)

	if err := tracker.Update(ctx, model.JobDownloading, ProgressDownloaded, "Video downloaded successfully", func(s *model.JobState) {
		s.OriginalDuration = video.Duration
	}); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), video)
}
