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

// This file, `pipeline.go`, defines the PipelineService, the two operations
// the clone pipeline exposes to its callers: Start, which records a pending
// job and hands a task to the dispatcher, and GetState, a read-only snapshot.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

var (
	// ErrInvalidRequest wraps every validation failure of Start.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionBusy is returned when a session already has a run in flight.
	ErrSessionBusy = errors.New("session already has a pipeline running")
)

// Dispatcher hands a pipeline task to whatever runs it: the in-process worker
// pool or a Pub/Sub topic. Dispatch must not block on the run itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *model.PipelineTask) error
}

// RouteChecker reports whether a generation client exists for a provider/model pair.
type RouteChecker interface {
	Supports(provider model.Provider, m model.ModelName) bool
}

// StartRequest carries the arguments of Start.
type StartRequest struct {
	SessionID        string
	SourceURL        string
	ProductName      string
	ProductImagePath string
	NumVariants      int
	Provider         model.Provider
	Model            model.ModelName
	Strategy         model.Strategy
}

// PipelineService starts runs and serves their state.
type PipelineService struct {
	Jobs       JobStore
	Dispatcher Dispatcher
	Routes     RouteChecker
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Validate checks a request and fills in the default strategy.
func (s *PipelineService) Validate(req *StartRequest) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return validationError("session id is required")
	}
	if strings.TrimSpace(req.SourceURL) == "" {
		return validationError("source url is required")
	}
	if strings.TrimSpace(req.ProductName) == "" {
		return validationError("product name is required")
	}
	if req.NumVariants < 1 || req.NumVariants > model.MaxVariantsPerSession {
		return validationError("num_variants must be between 1 and %d", model.MaxVariantsPerSession)
	}
	if req.Strategy == "" {
		req.Strategy = model.DefaultStrategy
	}
	if req.Strategy != model.StrategySegments && req.Strategy != model.StrategySeamless {
		return validationError("unknown strategy %q", req.Strategy)
	}
	if s.Routes != nil && !s.Routes.Supports(req.Provider, req.Model) {
		return validationError("model %s is not offered by %s", req.Model, req.Provider)
	}
	return nil
}

// Start validates req, records a pending JobState and dispatches the task.
// It returns as soon as the task is queued.
func (s *PipelineService) Start(ctx context.Context, req StartRequest) error {
	if err := s.Validate(&req); err != nil {
		return err
	}

	state := model.NewJobState(req.SessionID, req.NumVariants)
	if err := s.Jobs.Create(ctx, state); err != nil {
		if errors.Is(err, ErrJobExists) {
			return ErrSessionBusy
		}
		return err
	}

	task := &model.PipelineTask{
		SessionID:        req.SessionID,
		SourceURL:        req.SourceURL,
		ProductName:      req.ProductName,
		ProductImagePath: req.ProductImagePath,
		NumVariants:      req.NumVariants,
		Provider:         req.Provider,
		Model:            req.Model,
		Strategy:         req.Strategy,
		Attempt:          1,
	}
	if err := s.Dispatcher.Dispatch(ctx, task); err != nil {
		slog.ErrorContext(ctx, "dispatch failed", "session_id", req.SessionID, "error", err)
		state.Status = model.JobFailed
		state.CurrentStep = "Pipeline failed"
		state.Error = fmt.Sprintf("could not queue pipeline: %v", err)
		state.UpdatedAt = time.Now().UTC()
		if saveErr := s.Jobs.Save(ctx, state); saveErr != nil {
			slog.ErrorContext(ctx, "could not record dispatch failure", "session_id", req.SessionID, "error", saveErr)
		}
		if errors.Is(err, ErrSessionBusy) {
			return err
		}
		return fmt.Errorf("dispatching pipeline: %w", err)
	}
	slog.InfoContext(ctx, "pipeline queued", "session_id", req.SessionID, "provider", req.Provider, "model", req.Model, "variants", req.NumVariants)
	return nil
}

// GetState returns a snapshot of the session's job, or ErrJobNotFound.
func (s *PipelineService) GetState(ctx context.Context, sessionID string) (*model.JobState, error) {
	return s.Jobs.Get(ctx, sessionID)
}
