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

package segment_test

import (
	"errors"
	"math"
	"testing"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eightSecond = model.ModelLimits{MaxDuration: 8, MinDuration: 3, DefaultDuration: 8}

func sum(segs []model.ClipSegment) float64 {
	total := 0.0
	for _, s := range segs {
		total += s.Duration
	}
	return total
}

func TestCalculate_RemainderAboveThresholdAddsClip(t *testing.T) {
	segs, err := segment.Calculate(20, eightSecond, nil)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	for i, s := range segs {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, model.PacingNormal, s.Pacing)
		assert.Empty(t, s.PacingNote)
		assert.InDelta(t, 20.0/3.0, s.Duration, 1e-9)
	}
}

func TestCalculate_SmallRemainderUsesFasterPacing(t *testing.T) {
	segs, err := segment.Calculate(17, eightSecond, nil)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	for _, s := range segs {
		assert.Equal(t, model.PacingSlightlyFaster, s.Pacing)
		assert.LessOrEqual(t, s.TargetDuration, 8.0)
	}
	assert.Equal(t, "PACING: Speak 6% faster to fit 17.0s content into 16.0s. Keep natural rhythm but slightly quicker pace.", segs[0].PacingNote)
	assert.Empty(t, segs[1].PacingNote)
}

func TestCalculate_ExactFit(t *testing.T) {
	segs, err := segment.Calculate(16, eightSecond, nil)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	for _, s := range segs {
		assert.Equal(t, model.PacingNormal, s.Pacing)
		assert.Empty(t, s.PacingNote)
		assert.Equal(t, 8.0, s.TargetDuration)
	}
}

func TestCalculate_ZeroAndShortVideos(t *testing.T) {
	segs, err := segment.Calculate(0, eightSecond, nil)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, model.PacingNormal, segs[0].Pacing)

	segs, err = segment.Calculate(5, eightSecond, []float64{2.5})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 0.0, segs[0].StartTime)
	assert.Equal(t, 5.0, segs[0].EndTime)
	assert.Equal(t, model.PacingNormal, segs[0].Pacing)
}

func TestCalculate_InvalidDuration(t *testing.T) {
	for _, d := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := segment.Calculate(d, eightSecond, nil)
		var segErr *segment.SegmentationError
		assert.True(t, errors.As(err, &segErr))
		assert.ErrorIs(t, err, segment.ErrInvalidDuration)
	}
}

func TestCalculate_AlignsToScenes(t *testing.T) {
	segs, err := segment.Calculate(20, eightSecond, []float64{6, 12, 18})
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, 6.0, segs[0].EndTime)
	assert.Equal(t, 12.0, segs[1].EndTime)
	assert.Equal(t, 20.0, segs[2].EndTime)
	assert.InDelta(t, 20.0, sum(segs), 1e-6)
}

func TestCalculate_FewScenesFallsBackToEvenSplit(t *testing.T) {
	segs, err := segment.Calculate(20, eightSecond, []float64{10})
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.InDelta(t, 20.0/3.0, segs[0].Duration, 1e-9)
}

func TestCalculate_BisectsWhenGreedyFallsShort(t *testing.T) {
	segs, err := segment.Calculate(20, eightSecond, []float64{16, 17, 18})
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, 0.0, segs[0].StartTime)
	assert.Equal(t, 20.0, segs[2].EndTime)
	assert.InDelta(t, 20.0, sum(segs), 1e-6)
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].EndTime, segs[i].StartTime)
	}
}

func TestCalculate_SumAndTargetInvariants(t *testing.T) {
	limits := []model.ModelLimits{
		eightSecond,
		segment.LimitsFor(model.ModelDefAPISora2),
		{MaxDuration: 4, MinDuration: 1, DefaultDuration: 4},
	}
	scenes := [][]float64{nil, {1.5, 3, 9.2, 14.8}, {0.4, 0.8, 1.2, 30, 31, 32, 33, 34, 35}}
	for _, l := range limits {
		for d := 0.5; d < 70; d += 1.37 {
			for _, sc := range scenes {
				segs, err := segment.Calculate(d, l, sc)
				require.NoError(t, err)
				require.NotEmpty(t, segs)
				assert.InDelta(t, d, sum(segs), 1e-6, "duration %.2f", d)
				for i, s := range segs {
					assert.Equal(t, i, s.Index)
					assert.LessOrEqual(t, s.TargetDuration, l.MaxDuration)
					if i > 0 {
						assert.Empty(t, s.PacingNote)
					}
				}
			}
		}
	}
}

func TestLimitsAndPrefix(t *testing.T) {
	assert.Equal(t, 15.0, segment.LimitsFor(model.ModelDefAPISora2).MaxDuration)
	assert.Equal(t, segment.DefaultLimits, segment.LimitsFor("unknown-model"))
	assert.Equal(t, "(15s,hd) ", segment.DurationPrefix(model.ModelDefAPISora2, 12))
	assert.Equal(t, "(10s,hd) ", segment.DurationPrefix(model.ModelDefAPISora2, 10))
	assert.Equal(t, "", segment.DurationPrefix(model.ModelVeo31Fast, 12))
}

func TestSceneBoundaries(t *testing.T) {
	cuts := segment.SceneBoundaries([]model.TimeSpan{{Start: 0, End: 4}, {Start: 4, End: 9}, {Start: 9, End: 12}})
	assert.Equal(t, []float64{4, 9}, cuts)
}
