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

package media

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// DefaultSceneThreshold is the ffmpeg scene score above which a frame starts a new scene.
const DefaultSceneThreshold = 0.3

// FFmpegSceneDetector finds scene cuts with ffmpeg's scene filter.
type FFmpegSceneDetector struct {
	runner    *Runner
	path      string
	threshold float64
}

func NewFFmpegSceneDetector(runner *Runner, ffmpegPath string, threshold float64) *FFmpegSceneDetector {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultSceneThreshold
	}
	return &FFmpegSceneDetector{runner: runner, path: ffmpegPath, threshold: threshold}
}

// Detect returns the ordered scenes of the video. A video without cuts is one
// scene spanning [0, duration].
func (d *FFmpegSceneDetector) Detect(ctx context.Context, videoPath string, duration float64) ([]model.TimeSpan, error) {
	res, err := d.runner.Run(ctx, d.path,
		"-hide_banner",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%f)',showinfo", d.threshold),
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("scene detection failed: %w", err)
	}
	cuts := ParseSceneCuts(res.Stderr)
	slog.InfoContext(ctx, "scene detection complete", "cuts", len(cuts))
	return ScenesFromCuts(cuts, duration), nil
}

// ParseSceneCuts extracts the pts_time values showinfo prints for every
// selected frame.
func ParseSceneCuts(output string) []float64 {
	var cuts []float64
	for _, line := range strings.Split(output, "\n") {
		_, after, found := strings.Cut(line, "pts_time:")
		if !found {
			continue
		}
		fields := strings.Fields(after)
		if len(fields) == 0 {
			continue
		}
		if seconds, err := strconv.ParseFloat(fields[0], 64); err == nil {
			cuts = append(cuts, seconds)
		}
	}
	return cuts
}

// ScenesFromCuts turns cut timestamps into contiguous spans covering [0, duration].
func ScenesFromCuts(cuts []float64, duration float64) []model.TimeSpan {
	sorted := append([]float64(nil), cuts...)
	sort.Float64s(sorted)

	scenes := make([]model.TimeSpan, 0, len(sorted)+1)
	start := 0.0
	for _, c := range sorted {
		if c <= start || c >= duration {
			continue
		}
		scenes = append(scenes, model.TimeSpan{Start: start, End: c})
		start = c
	}
	if duration > start {
		scenes = append(scenes, model.TimeSpan{Start: start, End: duration})
	}
	return scenes
}
