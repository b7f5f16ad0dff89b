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

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/workflow"
)

// pipelineLeaseExtension bounds how long a message stays leased while one
// pipeline run generates every clip.
const pipelineLeaseExtension = 3 * time.Hour

// SetupListeners attaches the pipeline workflow to its subscription. It does
// nothing in local dispatch mode.
func SetupListeners(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients, pipeline *workflow.ClonePipelineWorkflow) {
	if config.Application.DispatchMode != cloud.DispatchPubSub {
		return
	}
	listener, ok := cloudClients.PubSubListeners[cloud.PipelineTopic]
	if !ok {
		slog.WarnContext(ctx, "no subscription configured for the pipeline topic", "key", cloud.PipelineTopic)
		return
	}
	listener.SetCommand(pipeline)
	listener.Configure(config.Application.WorkerCount, pipelineLeaseExtension, config.Application.MaxPipelineAttempts)
	listener.SetRetryPolicy(time.Duration(config.Application.RetryBackoffSeconds)*time.Second, workflow.Permanent)
	listener.Listen(ctx)
}
