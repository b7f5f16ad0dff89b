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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// PipelineTaskReader decodes the task handed to the workflow, resets the
// session's existing JobState for this attempt and opens the JobTracker every later
// step writes through. It also creates the per-attempt work directory, which
// is removed when the context is closed.
type PipelineTaskReader struct {
	cor.BaseCommand
	jobs    JobStore
	workDir string
}

func NewPipelineTaskReader(name string, jobs JobStore, workDir string) *PipelineTaskReader {
	out := &PipelineTaskReader{BaseCommand: *cor.NewBaseCommand(name), jobs: jobs, workDir: workDir}
	out.OutputParamName = TaskKey
	return out
}

func (c *PipelineTaskReader) Execute(context cor.Context) {
	task, err := decodeTask(context.Get(c.GetInputParam()))
	if err != nil {
		c.Fail(context, err)
		return
	}
	if task.SessionID == "" {
		c.Fail(context, errors.New("pipeline task has no session id"))
		return
	}
	if delivery, ok := context.Get(cor.CtxAttempt).(int); ok && delivery > task.Attempt {
		task.Attempt = delivery
	}
	if task.Attempt < 1 {
		task.Attempt = 1
	}

	ctx := context.GetContext()
	// The job is created when the run is started. A missing one means the
	// session was deleted while the task sat in the queue.
	state, err := c.jobs.Get(ctx, task.SessionID)
	if err != nil {
		c.Fail(context, fmt.Errorf("loading job of session %s: %w", task.SessionID, err))
		return
	}
	// Each attempt starts over from an empty state.
	state.Status = model.JobPending
	state.Progress = 0
	state.Error = ""
	state.Variants = make([]*model.VariantResult, 0)
	state.TotalCost = 0
	state.VariantsCompleted = 0
	state.VariantsTotal = task.NumVariants
	state.Attempt = task.Attempt
	state.CurrentStep = fmt.Sprintf("Starting attempt %d", task.Attempt)
	tracker := NewJobTracker(c.jobs, state)
	if err := tracker.Update(ctx, model.JobPending, 0, "", nil); err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(TrackerKey, tracker)

	dir := filepath.Join(c.workDir, task.SessionID, fmt.Sprintf("attempt_%02d", task.Attempt))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.Fail(context, fmt.Errorf("creating work directory: %w", err))
		return
	}
	context.AddTempFile(dir)
	context.Add(WorkDirKey, dir)

	c.Succeed(context)
	context.Add(c.GetOutputParam(), task)
}

func decodeTask(in interface{}) (*model.PipelineTask, error) {
	switch v := in.(type) {
	case *model.PipelineTask:
		cp := *v
		return &cp, nil
	case string:
		return unmarshalTask([]byte(v))
	case []byte:
		return unmarshalTask(v)
	default:
		return nil, fmt.Errorf("unexpected pipeline input %T", in)
	}
}

func unmarshalTask(raw []byte) (*model.PipelineTask, error) {
	task := &model.PipelineTask{}
	if err := json.Unmarshal(raw, task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline task: %w", err)
	}
	return task, nil
}

// Shared accessors for values placed in the context by earlier steps.

func taskFrom(context cor.Context) *model.PipelineTask {
	task, _ := context.Get(TaskKey).(*model.PipelineTask)
	return task
}

func trackerFrom(context cor.Context) *JobTracker {
	tracker, _ := context.Get(TrackerKey).(*JobTracker)
	return tracker
}

// TrackerFrom exposes the JobTracker opened by the PipelineTaskReader.
func TrackerFrom(context cor.Context) *JobTracker {
	return trackerFrom(context)
}

// TaskFrom exposes the task decoded by the PipelineTaskReader.
func TaskFrom(context cor.Context) *model.PipelineTask {
	return taskFrom(context)
}
