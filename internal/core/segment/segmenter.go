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

// Package segment splits a source video into clip windows that a generation
// model can render. It is pure: no I/O and no state.
//
// Logic Flow:
//  1. Resolve the model limits, falling back to 8s/3s/8s for unknown models.
//  2. Decide the clip count: floor(duration / max), plus one when the
//     remainder is above PacingThreshold. A smaller remainder keeps the count
//     and asks the first clip to speak slightly faster instead.
//  3. Split evenly, or align the windows to scene boundaries when enough
//     scenes are available.
package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

const (
	// PacingThreshold is the largest overflow (in seconds) absorbed by faster pacing.
	PacingThreshold = 3.0
	// SceneFillRatio is the share of the even split a scene run must reach to close a clip.
	SceneFillRatio = 0.8
)

// DefaultLimits apply to any model missing from the limits table.
var DefaultLimits = model.ModelLimits{MaxDuration: 8.0, MinDuration: 3.0, DefaultDuration: 8.0}

var modelLimits = map[model.ModelName]model.ModelLimits{
	model.ModelDefAPISora2:  {MaxDuration: 15.0, MinDuration: 5.0, DefaultDuration: 10.0},
	model.ModelDefAPIVeo31:  {MaxDuration: 8.0, MinDuration: 3.0, DefaultDuration: 8.0},
	model.ModelVeo31Fast:    {MaxDuration: 8.0, MinDuration: 3.0, DefaultDuration: 8.0},
	model.ModelVeo31Quality: {MaxDuration: 8.0, MinDuration: 3.0, DefaultDuration: 8.0},
	model.ModelSora2:        {MaxDuration: 8.0, MinDuration: 3.0, DefaultDuration: 8.0},
}

// ErrInvalidDuration is wrapped by every SegmentationError.
var ErrInvalidDuration = errors.New("invalid video duration")

// SegmentationError reports a malformed input. It is fatal for a pipeline run.
type SegmentationError struct {
	Duration float64
	Reason   string
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segmentation failed for duration %.3f: %s", e.Duration, e.Reason)
}

func (e *SegmentationError) Unwrap() error { return ErrInvalidDuration }

// LimitsFor returns the duration limits of a model.
func LimitsFor(m model.ModelName) model.ModelLimits {
	if l, ok := modelLimits[m]; ok {
		return l
	}
	return DefaultLimits
}

// DurationPrefix returns the prompt prefix some providers use to select the clip length.
func DurationPrefix(m model.ModelName, targetDuration float64) string {
	if m != model.ModelDefAPISora2 {
		return ""
	}
	if targetDuration > 10 {
		return "(15s,hd) "
	}
	return "(10s,hd) "
}

// Calculate computes the ordered clip windows for a video.
//
// Inputs:
//   - videoDuration: total length of the source in seconds.
//   - limits: the target model's limit triple.
//   - sceneBoundaries: optional cut points in seconds (scene starts).
//
// Outputs:
//   - []model.ClipSegment: windows covering [0, videoDuration] in order.
//   - error: a *SegmentationError for negative, NaN or infinite durations.
func Calculate(videoDuration float64, limits model.ModelLimits, sceneBoundaries []float64) ([]model.ClipSegment, error) {
	if err := validate(videoDuration); err != nil {
		return nil, err
	}
	if limits.MaxDuration <= 0 {
		limits = DefaultLimits
	}
	maxDur := limits.MaxDuration

	if videoDuration == 0 {
		return Single(videoDuration, limits)
	}

	minClips := int(math.Max(1, math.Floor(videoDuration/maxDur)))
	remainder := videoDuration - float64(minClips)*maxDur

	numClips := minClips
	pacing := model.PacingNormal
	note := ""
	switch {
	case remainder <= 0:
	case remainder <= PacingThreshold:
		pacing = model.PacingSlightlyFaster
		capacity := float64(numClips) * maxDur
		ratio := videoDuration / capacity
		note = fmt.Sprintf("PACING: Speak %d%% faster to fit %.1fs content into %.1fs. Keep natural rhythm but slightly quicker pace.",
			int((ratio-1)*100), videoDuration, capacity)
	default:
		numClips = minClips + 1
	}

	boundaries := cleanBoundaries(sceneBoundaries, videoDuration)
	if len(boundaries) == 0 {
		return uniform(videoDuration, numClips, maxDur, pacing, note), nil
	}
	return alignToScenes(videoDuration, numClips, maxDur, boundaries, pacing, note), nil
}

// Single returns one window spanning the whole video.
func Single(videoDuration float64, limits model.ModelLimits) ([]model.ClipSegment, error) {
	if err := validate(videoDuration); err != nil {
		return nil, err
	}
	if limits.MaxDuration <= 0 {
		limits = DefaultLimits
	}
	return []model.ClipSegment{newSegment(0, 0, videoDuration, limits.MaxDuration, model.PacingNormal, "")}, nil
}

// SceneBoundaries turns detected scene spans into interior cut points.
func SceneBoundaries(scenes []model.TimeSpan) []float64 {
	out := make([]float64, 0, len(scenes))
	for i, s := range scenes {
		if i == 0 {
			continue
		}
		out = append(out, s.Start)
	}
	return out
}

func validate(d float64) error {
	switch {
	case math.IsNaN(d) || math.IsInf(d, 0):
		return &SegmentationError{Duration: d, Reason: "duration is not a finite number"}
	case d < 0:
		return &SegmentationError{Duration: d, Reason: "duration is negative"}
	}
	return nil
}

// cleanBoundaries keeps sorted, unique cut points strictly inside the video.
func cleanBoundaries(in []float64, d float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, b := range in {
		if b > 0 && b < d && !math.IsNaN(b) {
			out = append(out, b)
		}
	}
	sort.Float64s(out)
	uniq := out[:0]
	for i, b := range out {
		if i == 0 || b != out[i-1] {
			uniq = append(uniq, b)
		}
	}
	return uniq
}

func newSegment(index int, start, end, maxDur float64, pacing model.Pacing, note string) model.ClipSegment {
	return model.ClipSegment{
		Index:          index,
		StartTime:      start,
		EndTime:        end,
		Duration:       end - start,
		TargetDuration: math.Min(end-start, maxDur),
		Pacing:         pacing,
		PacingNote:     note,
	}
}

func uniform(d float64, n int, maxDur float64, pacing model.Pacing, note string) []model.ClipSegment {
	clip := d / float64(n)
	out := make([]model.ClipSegment, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * clip
		end := float64(i+1) * clip
		if i == n-1 {
			end = d
		}
		s := newSegment(i, start, end, maxDur, pacing, "")
		s.TargetDuration = math.Min(clip, maxDur)
		if i == 0 {
			s.PacingNote = note
		}
		out = append(out, s)
	}
	return out
}

func alignToScenes(d float64, n int, maxDur float64, cuts []float64, pacing model.Pacing, note string) []model.ClipSegment {
	// Scene spans, not cut points, decide whether alignment is possible.
	if len(cuts)+1 < n {
		return uniform(d, n, maxDur, pacing, note)
	}

	target := d / float64(n)
	bounds := append(append([]float64{}, cuts...), d)
	out := make([]model.ClipSegment, 0, n)
	start := 0.0

	for _, b := range bounds {
		last := len(out) == n-1
		if b-start >= target*SceneFillRatio || last {
			end := b
			if last {
				end = d
			}
			out = append(out, newSegment(len(out), start, end, maxDur, pacing, ""))
			start = end
			if len(out) >= n {
				break
			}
		}
	}

	// A short tail that never reached the fill ratio still belongs to the last clip.
	if len(out) == 0 {
		out = append(out, newSegment(0, 0, d, maxDur, pacing, ""))
	} else if tail := &out[len(out)-1]; tail.EndTime < d {
		*tail = newSegment(tail.Index, tail.StartTime, d, maxDur, pacing, "")
	}

	for len(out) < n {
		tail := out[len(out)-1]
		mid := (tail.StartTime + tail.EndTime) / 2
		out[len(out)-1] = newSegment(tail.Index, tail.StartTime, mid, maxDur, pacing, "")
		out = append(out, newSegment(len(out), mid, tail.EndTime, maxDur, pacing, ""))
	}

	out[0].PacingNote = note
	return out
}
