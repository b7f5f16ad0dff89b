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
	"encoding/json"
	"fmt"
	"strconv"
)

// ProbeInfo is the subset of ffprobe output the pipeline needs.
type ProbeInfo struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

// Prober reads media metadata with ffprobe.
type Prober struct {
	runner *Runner
	path   string
}

func NewProber(runner *Runner, ffprobePath string) *Prober {
	return &Prober{runner: runner, path: ffprobePath}
}

// Probe returns the duration and video dimensions of file.
func (p *Prober) Probe(ctx context.Context, file string) (*ProbeInfo, error) {
	res, err := p.runner.Run(ctx, p.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		file,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbe(res.Stdout)
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ParseProbe decodes the JSON printed by ffprobe. The container duration is
// preferred; the video stream duration is the fallback.
func ParseProbe(output []byte) (*ProbeInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &ProbeInfo{}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width, info.Height = stream.Width, stream.Height
			}
			if info.Duration == 0 {
				if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.Duration = d
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}
