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

// Package commands holds the steps of the clone pipeline. Each step is a
// cor.Command; the collaborators it drives are declared here as small
// interfaces so that tests can swap in fakes.
package commands

import (
	"context"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/prompts"
)

// Keys of the values the steps exchange through the cor.Context.
const (
	TaskKey     = "__TASK__"
	TrackerKey  = "__TRACKER__"
	WorkDirKey  = "__WORKDIR__"
	SourceKey   = "__SOURCE__"
	ScenesKey   = "__SCENES__"
	SegmentsKey = "__SEGMENTS__"
	PlanKey     = "__PLAN__"
	VariantsKey = "__VARIANTS__"
)

// JobStore is the part of the job store the pipeline writes through.
type JobStore interface {
	Get(ctx context.Context, sessionID string) (*model.JobState, error)
	Save(ctx context.Context, state *model.JobState) error
}

// VideoSource fetches the source video into destDir.
type VideoSource interface {
	Download(ctx context.Context, url, destDir string) (*model.SourceVideo, error)
}

// SceneDetector finds the scenes of a local video.
type SceneDetector interface {
	Detect(ctx context.Context, videoPath string, duration float64) ([]model.TimeSpan, error)
}

// PromptGenerator writes one prompt per clip segment.
type PromptGenerator = prompts.Generator

// Storage receives the finished clips.
type Storage interface {
	Upload(ctx context.Context, sessionID, localFile, name string) (string, error)
}

// FrameChainer extracts the frame used to seed the next clip.
type FrameChainer interface {
	ExtractLastFrame(ctx context.Context, videoPath string) (string, error)
}

// ClientRegistry resolves the generation client of a provider/model pair.
type ClientRegistry interface {
	ClientFor(provider model.Provider, m model.ModelName) (generation.Client, error)
}
