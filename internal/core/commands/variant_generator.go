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
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// VariantGenerator produces every variant of a run. Variants run in
// parallel up to the configured limit; the clips of one variant run in
// order, each seeded from the last frame of the clip before it.
type VariantGenerator struct {
	cor.BaseCommand
	registry    ClientRegistry
	storage     Storage
	chainer     FrameChainer
	parallelism int
}

func NewVariantGenerator(name string, registry ClientRegistry, storage Storage, chainer FrameChainer, parallelism int) *VariantGenerator {
	if parallelism < 1 {
		parallelism = 1
	}
	out := &VariantGenerator{
		BaseCommand: *cor.NewBaseCommand(name),
		registry:    registry,
		storage:     storage,
		chainer:     chainer,
		parallelism: parallelism,
	}
	out.InputParamName = PlanKey
	out.OutputParamName = VariantsKey
	return out
}

// variantJob is the read-only input shared by all variant goroutines.
type variantJob struct {
	task     *model.PipelineTask
	client   generation.Client
	segments []model.ClipSegment
	plan     *model.PromptPlan
	tracker  *JobTracker
	context  cor.Context
}

func (c *VariantGenerator) Execute(context cor.Context) {
	ctx := context.GetContext()
	task := taskFrom(context)
	tracker := trackerFrom(context)
	segments := context.Get(SegmentsKey).([]model.ClipSegment)
	plan := context.Get(c.GetInputParam()).(*model.PromptPlan)

	client, err := c.registry.ClientFor(task.Provider, task.Model)
	if err != nil {
		c.Fail(context, err)
		return
	}

	total := task.NumVariants * len(segments)
	if err := tracker.StartGeneration(ctx, total, fmt.Sprintf("Generating %d clips across %d variants...", total, task.NumVariants)); err != nil {
		c.Fail(context, err)
		return
	}

	job := &variantJob{task: task, client: client, segments: segments, plan: plan, tracker: tracker, context: context}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for v := 0; v < task.NumVariants; v++ {
		variant := v
		g.Go(func() error {
			return c.generateVariant(gctx, job, variant)
		})
	}
	if err := g.Wait(); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), tracker.Snapshot().Variants)
}

// generateVariant runs the clips of one variant in order. Clip failures are
// recorded and never stop the variant; only cancellation and state
// persistence errors are returned.
func (c *VariantGenerator) generateVariant(ctx context.Context, job *variantJob, variant int) error {
	productImage := job.task.ProductImagePath
	// seed is private to this goroutine.
	seed := productImage
	clipCount := len(job.segments)

	for i, seg := range job.segments {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("variant %d canceled: %w", variant, err)
		}
		if err := job.tracker.ClipStarted(ctx, variant, i, clipCount); err != nil {
			return err
		}

		prompt := job.plan.Clips[i]
		text := prompt.Prompt
		if i == 0 && seg.PacingNote != "" {
			text = strings.TrimSpace(text) + "\n\n" + seg.PacingNote
		}
		req := model.GenerationRequest{
			Prompt:         text,
			Provider:       job.task.Provider,
			Model:          job.task.Model,
			SeedImage:      seed,
			TargetDuration: seg.TargetDuration,
			SessionID:      job.task.SessionID,
			SlotIndex:      variant*clipCount + i,
			VariantIndex:   variant,
			ClipIndex:      i,
			Visual:         prompt.Visual,
		}

		result := job.client.SubmitAndAwait(ctx, req)
		clip := &model.ClipResult{
			ClipIndex: i,
			Duration:  seg.TargetDuration,
			Prompt:    text,
			Chained:   i > 0 && seed != "" && seed != productImage,
		}

		nextSeed := productImage
		if result.Success {
			// The storage keeps its own copy; the download is removed with the attempt.
			job.context.AddTempFile(result.VideoPath)
			clip.Cost = result.CostEstimate
			if i < clipCount-1 && c.chainer != nil {
				frame, err := c.chainer.ExtractLastFrame(ctx, result.VideoPath)
				if err != nil {
					slog.WarnContext(ctx, "frame chaining failed, next clip seeds from the product image",
						"session_id", job.task.SessionID, "variant", variant, "clip", i, "error", err)
				} else {
					job.context.AddTempFile(frame)
					nextSeed = frame
				}
			}

			url, err := c.storage.Upload(ctx, job.task.SessionID, result.VideoPath, req.OutputName())
			if err != nil {
				clip.Status = model.ClipFailed
				clip.Error = fmt.Sprintf("upload failed: %v", err)
				nextSeed = productImage
				slog.ErrorContext(ctx, "clip upload failed", "session_id", job.task.SessionID, "variant", variant, "clip", i, "error", err)
			} else {
				clip.Status = model.ClipCompleted
				clip.VideoURL = url
			}
		} else {
			clip.Status = model.ClipFailed
			clip.Error = result.Error
			slog.WarnContext(ctx, "clip generation failed", "session_id", job.task.SessionID, "variant", variant, "clip", i, "error", result.Error)
		}
		seed = nextSeed

		if err := job.tracker.RecordClip(ctx, variant, clip); err != nil {
			return err
		}
	}
	return job.tracker.FinishVariant(ctx, variant)
}
