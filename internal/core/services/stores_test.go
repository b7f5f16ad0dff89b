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

package services_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
	test "github.com/jaycherian/gcp-go-video-clone/internal/testutil"
)

type storeSet struct {
	name     string
	jobs     services.JobStore
	sessions services.SessionStore
	settings services.SettingsStore
}

func newStores(t *testing.T) []storeSet {
	t.Helper()
	sqlite := test.NewSQLiteStore(t)

	return []storeSet{
		{
			name:     "memory",
			jobs:     services.NewMemoryJobStore(),
			sessions: services.NewMemorySessionStore(),
			settings: services.NewMemorySettingsStore(),
		},
		{name: "sqlite", jobs: sqlite, sessions: sqlite, settings: sqlite},
	}
}

func TestJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	for _, s := range newStores(t) {
		t.Run(s.name, func(t *testing.T) {
			_, err := s.jobs.Get(ctx, "missing")
			assert.ErrorIs(t, err, services.ErrJobNotFound)

			state := model.NewJobState("s1", 2)
			require.NoError(t, s.jobs.Create(ctx, state))
			assert.ErrorIs(t, s.jobs.Create(ctx, model.NewJobState("s1", 2)), services.ErrJobExists)

			state.Status = model.JobGenerating
			state.Progress = 0.5
			state.Variants = append(state.Variants, &model.VariantResult{
				VariantIndex: 0,
				Clips:        []*model.ClipResult{{ClipIndex: 0, Status: model.ClipCompleted, Cost: 0.3}},
			})
			require.NoError(t, s.jobs.Save(ctx, state))

			got, err := s.jobs.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, model.JobGenerating, got.Status)
			assert.InDelta(t, 0.5, got.Progress, 1e-9)
			require.Len(t, got.Variants, 1)
			assert.Equal(t, model.ClipCompleted, got.Variants[0].Clips[0].Status)

			// the store hands out copies
			got.Variants[0].Clips[0].Status = model.ClipFailed
			again, err := s.jobs.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, model.ClipCompleted, again.Variants[0].Clips[0].Status)

			state.Status = model.JobCompleted
			require.NoError(t, s.jobs.Save(ctx, state))
			require.NoError(t, s.jobs.Create(ctx, model.NewJobState("s1", 3)), "a terminal job can be replaced")
			got, err = s.jobs.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, model.JobPending, got.Status)
			assert.Equal(t, 3, got.VariantsTotal)

			require.NoError(t, s.jobs.Delete(ctx, "s1"))
			_, err = s.jobs.Get(ctx, "s1")
			assert.ErrorIs(t, err, services.ErrJobNotFound)
		})
	}
}

func TestJobStoreListOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	for _, s := range newStores(t) {
		t.Run(s.name, func(t *testing.T) {
			old := model.NewJobState("old", 1)
			old.UpdatedAt = now.Add(-48 * time.Hour)
			fresh := model.NewJobState("fresh", 1)
			fresh.UpdatedAt = now
			require.NoError(t, s.jobs.Save(ctx, old))
			require.NoError(t, s.jobs.Save(ctx, fresh))

			ids, err := s.jobs.ListOlderThan(ctx, now.Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, []string{"old"}, ids)
		})
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, s := range newStores(t) {
		t.Run(s.name, func(t *testing.T) {
			first := &model.Session{
				SessionID: "a", SourceURL: "https://example.com/a", ProductName: "Mug", NumVariants: 1,
				Provider: model.ProviderKieAI, Model: model.ModelVeo31Fast, Strategy: model.StrategySegments,
				CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
			}
			second := &model.Session{
				SessionID: "b", SourceURL: "https://example.com/b", ProductName: "Lamp", NumVariants: 2,
				Provider: model.ProviderDefAPI, Model: model.ModelDefAPISora2, Strategy: model.StrategySeamless,
				CreatedAt: now, UpdatedAt: now,
			}
			require.NoError(t, s.sessions.CreateSession(ctx, first))
			require.NoError(t, s.sessions.CreateSession(ctx, second))

			list, err := s.sessions.ListSessions(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "b", list[0].SessionID, "newest first")

			first.ProductImagePath = "/tmp/product.png"
			require.NoError(t, s.sessions.UpdateSession(ctx, first))
			got, err := s.sessions.GetSession(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "/tmp/product.png", got.ProductImagePath)
			assert.True(t, got.CreatedAt.Equal(first.CreatedAt))

			ids, err := s.sessions.ListSessionsOlderThan(ctx, now.Add(-time.Minute))
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, ids)

			require.NoError(t, s.sessions.DeleteSession(ctx, "a"))
			_, err = s.sessions.GetSession(ctx, "a")
			assert.ErrorIs(t, err, services.ErrSessionNotFound)
			assert.ErrorIs(t, s.sessions.UpdateSession(ctx, first), services.ErrSessionNotFound)
		})
	}
}

func TestSettingsStore(t *testing.T) {
	ctx := context.Background()
	for _, s := range newStores(t) {
		t.Run(s.name, func(t *testing.T) {
			_, ok, err := s.settings.GetSetting(ctx, "kie_ai_key")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.settings.SetSettings(ctx, map[string]string{"kie_ai_key": "k1", "defapi_key": "d1"}))
			require.NoError(t, s.settings.SetSettings(ctx, map[string]string{"kie_ai_key": "k2"}))

			v, ok, err := s.settings.GetSetting(ctx, "kie_ai_key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "k2", v)

			all, err := s.settings.AllSettings(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"kie_ai_key": "k2", "defapi_key": "d1"}, all)
		})
	}
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	storage := services.NewLocalStorage(root, "/api/v1/videos/")

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0o644))

	url, err := storage.Upload(ctx, "s1", src, "variant_00_clip_00.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/videos/s1/variant_00_clip_00.mp4", url)
	assert.FileExists(t, filepath.Join(root, "s1", "variant_00_clip_00.mp4"))
	assert.NoFileExists(t, src)

	_, err = storage.Path("..", "x.mp4")
	assert.ErrorIs(t, err, services.ErrInvalidArtifactPath)
	_, err = storage.Path("s1", "../../etc/passwd")
	assert.ErrorIs(t, err, services.ErrInvalidArtifactPath)

	removed, err := storage.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = storage.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, removed)
}
