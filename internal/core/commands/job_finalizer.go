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
)

// JobFinalizer marks the job completed once every variant has been generated.
type JobFinalizer struct {
	cor.BaseCommand
}

func NewJobFinalizer(name string) *JobFinalizer {
	out := &JobFinalizer{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = VariantsKey
	return out
}

func (c *JobFinalizer) Execute(context cor.Context) {
	ctx := context.GetContext()
	tracker := trackerFrom(context)
	variants := context.Get(c.GetInputParam()).([]*model.VariantResult)

	if err := tracker.Update(ctx, model.JobGenerating, ProgressFinalizing, "Finalizing...", nil); err != nil {
		c.Fail(context, err)
		return
	}

	partial := 0
	for _, v := range variants {
		if v.Status == model.VariantPartial {
			partial++
		}
	}
	step := fmt.Sprintf("Complete: %d variants generated", len(variants))
	if partial > 0 {
		step = fmt.Sprintf("Complete: %d variants generated, %d partial", len(variants), partial)
	}
	if err := tracker.Complete(ctx, step); err != nil {
		c.Fail(context, err)
		return
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), tracker.Snapshot())
}
