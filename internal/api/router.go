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

// Package api exposes the session, pipeline and settings operations over HTTP
// with gin. Every route lives under the group passed to Register, normally
// /api/v1.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
)

// RouteLister reports the (provider, model) pairs that can be generated.
type RouteLister interface {
	Routes() []generation.Route
}

// RunHistory reads the run ledger.
type RunHistory interface {
	History(ctx context.Context, sessionID string) ([]services.RunRecord, error)
	SpendSince(ctx context.Context, since time.Time) ([]services.ModelSpend, error)
}

// Info is static server information returned by GET /status.
type Info struct {
	Version         string `json:"version"`
	StorageMode     string `json:"storage_mode"`
	DispatchMode    string `json:"dispatch_mode"`
	DefaultProvider string `json:"default_provider"`
	DefaultModel    string `json:"default_model"`
}

// Handlers holds the services behind the HTTP routes. Videos and History are
// optional: their routes answer 404 when unset.
type Handlers struct {
	Sessions *services.SessionService
	Pipeline *services.PipelineService
	Settings services.SettingsStore
	Videos   *services.LocalStorage
	History  RunHistory
	Routes   RouteLister
	Info     Info
	// MaxImageBytes bounds product image uploads.
	MaxImageBytes int64
}

// Register installs every route on r.
func (h *Handlers) Register(r *gin.RouterGroup) {
	h.SessionRouter(r)
	h.LibraryRouter(r)
	h.SettingsRouter(r)
	h.VideoRouter(r)
	h.Dashboard(r)
	h.StatusRouter(r)
}

// writeError maps service errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrInvalidArtifactPath):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrSessionBusy):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
