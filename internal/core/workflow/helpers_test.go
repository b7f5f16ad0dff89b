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

package workflow_test

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
)

const tName = "github.com/jaycherian/gcp-go-video-clone/tests/workflow"

var (
	tracer = otel.Tracer(tName)
	logger = otelslog.NewLogger(tName)
)

// newChainContext builds a chain context carrying the given input, the same
// way the Pub/Sub listener does for a delivered message.
func newChainContext(ctx context.Context, in interface{}) cor.Context {
	ctx, span := tracer.Start(ctx, "test-chain-context")
	defer span.End()
	logger.DebugContext(ctx, "chain context", "input", fmt.Sprintf("%T", in))

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, in)
	return chCtx
}
