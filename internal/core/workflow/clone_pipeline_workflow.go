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

// Package workflow assembles the pipeline commands into runnable workflows
// and owns the processes that drive them: the in-process dispatcher and the
// session janitor.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/prompts"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/segment"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
)

// Dependencies are the collaborators of one ClonePipelineWorkflow.
type Dependencies struct {
	Jobs        commands.JobStore
	Source      commands.VideoSource
	Detector    commands.SceneDetector
	Prompts     commands.PromptGenerator
	Registry    commands.ClientRegistry
	Storage     commands.Storage
	Chainer     commands.FrameChainer
	WorkDir     string
	Parallelism int
	// Ledger, when set, receives one record per finished attempt.
	Ledger services.RunLedger
}

// ClonePipelineWorkflow runs one attempt of the clone pipeline for the task
// found under cor.CtxIn, either a *model.PipelineTask or its JSON.
type ClonePipelineWorkflow struct {
	cor.BaseCommand
	deps  Dependencies
	chain cor.Chain
}

func NewClonePipelineWorkflow(deps Dependencies) *ClonePipelineWorkflow {
	w := &ClonePipelineWorkflow{
		BaseCommand: *cor.NewBaseCommand("clone-pipeline"),
		deps:        deps,
	}
	w.initializeChain()
	return w
}

func (w *ClonePipelineWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewPipelineTaskReader("pipeline-task-reader", w.deps.Jobs, w.deps.WorkDir))
	out.AddCommand(commands.NewSourceVideoDownload("source-video-download", w.deps.Source))
	out.AddCommand(commands.NewSceneDetectorCommand("scene-detector", w.deps.Detector))
	out.AddCommand(commands.NewClipSegmenter("clip-segmenter"))
	out.AddCommand(commands.NewClipPromptCreator("clip-prompt-creator", w.deps.Prompts))
	out.AddCommand(commands.NewVariantGenerator("variant-generator", w.deps.Registry, w.deps.Storage, w.deps.Chainer, w.deps.Parallelism))
	out.AddCommand(commands.NewJobFinalizer("job-finalizer"))
	w.chain = out
}

// Execute runs the chain, turns any error or panic into a failed JobState
// and removes the attempt's temporary files.
func (w *ClonePipelineWorkflow) Execute(context cor.Context) {
	defer context.Close()
	w.runChain(context)

	ctx := context.GetContext()
	tracker := commands.TrackerFrom(context)
	if context.HasErrors() {
		err := context.Err()
		w.Fail(context, err)
		slog.ErrorContext(ctx, "pipeline attempt failed", "error", err)
		if tracker != nil {
			if saveErr := tracker.Fail(ctx, err); saveErr != nil {
				slog.ErrorContext(ctx, "could not record pipeline failure", "error", saveErr)
			}
		}
	} else {
		w.Succeed(context)
	}
	w.record(context, tracker)
}

func (w *ClonePipelineWorkflow) runChain(context cor.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(context.GetContext(), "pipeline panicked", "panic", r, "stack", string(debug.Stack()))
			context.AddError(w.GetName(), fmt.Errorf("pipeline panicked: %v", r))
		}
	}()
	w.chain.Execute(context)
}

func (w *ClonePipelineWorkflow) record(context cor.Context, tracker *commands.JobTracker) {
	task := commands.TaskFrom(context)
	if w.deps.Ledger == nil || task == nil || tracker == nil {
		return
	}
	ctx := context.GetContext()
	if err := w.deps.Ledger.Record(ctx, services.NewRunRecord(task, tracker.Snapshot())); err != nil {
		slog.WarnContext(ctx, "could not record run", "session_id", task.SessionID, "error", err)
	}
}

// Run executes one attempt for task and returns the chain's error, if any.
func (w *ClonePipelineWorkflow) Run(ctx context.Context, task *model.PipelineTask) error {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, task)
	w.Execute(chCtx)
	return chCtx.Err()
}

// Permanent reports whether retrying the pipeline cannot change the outcome.
func Permanent(err error) bool {
	var segErr *segment.SegmentationError
	return errors.As(err, &segErr) ||
		errors.Is(err, prompts.ErrPromptCount) ||
		errors.Is(err, generation.ErrUnknownRoute) ||
		errors.Is(err, model.ErrJobNotFound)
}
