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

// This file, `sessions.go`, defines the SessionService behind the session
// routes of the API: creating sessions, attaching the product image, starting
// generation and removing everything a session produced.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/media"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// ArtifactStorage is where generated clips end up.
type ArtifactStorage interface {
	Upload(ctx context.Context, sessionID, localFile, name string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	SourceURL   string          `json:"source_url"`
	ProductName string          `json:"product_name"`
	NumVariants int             `json:"num_variants"`
	Provider    model.Provider  `json:"provider"`
	Model       model.ModelName `json:"model"`
	Strategy    model.Strategy  `json:"strategy"`
}

// SessionDefaults fill the fields a request leaves empty.
type SessionDefaults struct {
	Provider model.Provider
	Model    model.ModelName
	Strategy model.Strategy
}

// SessionService manages sessions and everything stored for them.
type SessionService struct {
	Sessions SessionStore
	Jobs     JobStore
	Storage  ArtifactStorage
	Pipeline *PipelineService
	// ImageDir holds uploaded product images, one directory per session.
	ImageDir string
	// WorkDir is the scratch space of pipeline runs, one directory per session.
	WorkDir  string
	Defaults SessionDefaults
}

// Create validates req and stores a new session.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*model.Session, error) {
	now := time.Now().UTC()
	session := &model.Session{
		SessionID:   uuid.NewString(),
		SourceURL:   strings.TrimSpace(req.SourceURL),
		ProductName: strings.TrimSpace(req.ProductName),
		NumVariants: req.NumVariants,
		Provider:    req.Provider,
		Model:       req.Model,
		Strategy:    req.Strategy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if session.NumVariants == 0 {
		session.NumVariants = 1
	}
	if session.Provider == "" {
		session.Provider = s.Defaults.Provider
	}
	if session.Model == "" {
		session.Model = s.Defaults.Model
	}
	if session.Strategy == "" {
		session.Strategy = s.Defaults.Strategy
	}

	probe := startRequest(session)
	if err := s.Pipeline.Validate(&probe); err != nil {
		return nil, err
	}
	session.Strategy = probe.Strategy

	if err := s.Sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "session created", "session_id", session.SessionID, "provider", session.Provider, "model", session.Model)
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.Sessions.GetSession(ctx, sessionID)
}

func (s *SessionService) List(ctx context.Context) ([]*model.Session, error) {
	return s.Sessions.ListSessions(ctx)
}

// AttachImage validates the uploaded file at tmpPath and stores it as the
// session's product image.
func (s *SessionService) AttachImage(ctx context.Context, sessionID, tmpPath string) (*model.Session, error) {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	info, err := media.ValidateImage(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	dir := filepath.Join(s.ImageDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dest := filepath.Join(dir, "product."+info.Extension)
	if err := copyFile(tmpPath, dest); err != nil {
		return nil, err
	}
	if session.ProductImagePath != "" && session.ProductImagePath != dest {
		_ = os.Remove(session.ProductImagePath)
	}

	session.ProductImagePath = dest
	session.UpdatedAt = time.Now().UTC()
	if err := s.Sessions.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Generate starts the pipeline for an existing session.
func (s *SessionService) Generate(ctx context.Context, sessionID string) error {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.Pipeline.Start(ctx, startRequest(session))
}

// Delete removes the artifacts, the job state, the local files and the session
// record. A session whose run is queued, running or waiting to retry is refused.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.Sessions.GetSession(ctx, sessionID); err != nil {
		return err
	}
	if state, err := s.Jobs.Get(ctx, sessionID); err == nil && !state.Status.IsTerminal() {
		return ErrSessionBusy
	} else if err != nil && !errors.Is(err, ErrJobNotFound) {
		return err
	}
	return s.Purge(ctx, sessionID)
}

// Purge removes everything stored for a session without any checks.
func (s *SessionService) Purge(ctx context.Context, sessionID string) error {
	var errs []error
	if s.Storage != nil {
		if _, err := s.Storage.DeleteSession(ctx, sessionID); err != nil {
			errs = append(errs, fmt.Errorf("deleting artifacts: %w", err))
		}
	}
	for _, dir := range []string{s.ImageDir, s.WorkDir} {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, sessionID)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Jobs.Delete(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("deleting job: %w", err))
	}
	if err := s.Sessions.DeleteSession(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("deleting session: %w", err))
	}
	if len(errs) == 0 {
		slog.InfoContext(ctx, "session deleted", "session_id", sessionID)
	}
	return errors.Join(errs...)
}

func startRequest(session *model.Session) StartRequest {
	return StartRequest{
		SessionID:        session.SessionID,
		SourceURL:        session.SourceURL,
		ProductName:      session.ProductName,
		ProductImagePath: session.ProductImagePath,
		NumVariants:      session.NumVariants,
		Provider:         session.Provider,
		Model:            session.Model,
		Strategy:         session.Strategy,
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
