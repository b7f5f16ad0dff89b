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

// Package cor (Chain of Responsibility) holds the building blocks the clone
// pipeline is assembled from. A workflow is a Chain of Commands sharing one
// Context; each command reads its input from the context, does one unit of
// work and writes its output back for the next command.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Keys used by BaseChain to pipe the output of one command into the next.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"

	// CtxAttempt carries the delivery attempt of the message being processed.
	CtxAttempt = "__ATTEMPT__"
)

// Context is the property bag carried through a chain for one execution.
// Implementations must be safe for use by concurrent commands.
type Context interface {
	// SetContext replaces the Go context (cancellation and trace span).
	SetContext(context context.Context)
	GetContext() context.Context

	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records an error keyed by the name of the failing command.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	// Err joins every recorded error, or returns nil.
	Err() error

	// AddTempFile registers a path removed by Close.
	AddTempFile(file string)
	GetTempFiles() []string
	Close()
}

// Executable is anything with execution logic driven by a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one instrumented unit of work inside a chain.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable is the precondition checked by the chain before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered list of commands and is itself a Command, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps executing after a command records an error.
	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
