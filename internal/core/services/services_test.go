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
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
	test "github.com/jaycherian/gcp-go-video-clone/internal/testutil"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []*model.PipelineTask
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task *model.PipelineTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

func newRoutes() *generation.Registry {
	r := generation.NewRegistry()
	r.Register(model.ProviderKieAI, nil, model.ModelVeo31Fast, model.ModelSora2)
	r.Register(model.ProviderDefAPI, nil, model.ModelDefAPIVeo31)
	return r
}

func validStart() services.StartRequest {
	return services.StartRequest{
		SessionID:   "s1",
		SourceURL:   "https://example.com/v.mp4",
		ProductName: "Mug",
		NumVariants: 2,
		Provider:    model.ProviderKieAI,
		Model:       model.ModelVeo31Fast,
	}
}

func TestPipelineStartQueuesPendingJob(t *testing.T) {
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	svc := &services.PipelineService{Jobs: services.NewMemoryJobStore(), Dispatcher: dispatcher, Routes: newRoutes()}

	require.NoError(t, svc.Start(ctx, validStart()))

	state, err := svc.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, state.Status)
	assert.Equal(t, 2, state.VariantsTotal)
	assert.Zero(t, state.Progress)

	require.Len(t, dispatcher.tasks, 1)
	task := dispatcher.tasks[0]
	assert.Equal(t, 1, task.Attempt)
	assert.Equal(t, model.StrategySegments, task.Strategy)

	again, err := svc.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, state, again)
}

func TestPipelineStartValidation(t *testing.T) {
	svc := &services.PipelineService{Jobs: services.NewMemoryJobStore(), Dispatcher: &recordingDispatcher{}, Routes: newRoutes()}

	cases := map[string]func(r *services.StartRequest){
		"no session":       func(r *services.StartRequest) { r.SessionID = "" },
		"no source":        func(r *services.StartRequest) { r.SourceURL = " " },
		"no product":       func(r *services.StartRequest) { r.ProductName = "" },
		"zero variants":    func(r *services.StartRequest) { r.NumVariants = 0 },
		"too many":         func(r *services.StartRequest) { r.NumVariants = model.MaxVariantsPerSession + 1 },
		"bad strategy":     func(r *services.StartRequest) { r.Strategy = "collage" },
		"unsupported pair": func(r *services.StartRequest) { r.Provider = model.ProviderDefAPI },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validStart()
			mutate(&req)
			err := svc.Start(context.Background(), req)
			assert.ErrorIs(t, err, services.ErrInvalidRequest)
		})
	}
}

func TestPipelineStartBusy(t *testing.T) {
	ctx := context.Background()
	jobs := services.NewMemoryJobStore()
	svc := &services.PipelineService{Jobs: jobs, Dispatcher: &recordingDispatcher{}}

	require.NoError(t, svc.Start(ctx, validStart()))
	assert.ErrorIs(t, svc.Start(ctx, validStart()), services.ErrSessionBusy)

	state, err := jobs.Get(ctx, "s1")
	require.NoError(t, err)
	state.Status = model.JobCompleted
	require.NoError(t, jobs.Save(ctx, state))
	assert.NoError(t, svc.Start(ctx, validStart()), "a finished session can be generated again")
}

func TestPipelineStartDispatchFailure(t *testing.T) {
	ctx := context.Background()
	svc := &services.PipelineService{
		Jobs:       services.NewMemoryJobStore(),
		Dispatcher: &recordingDispatcher{err: errors.New("topic unavailable")},
	}

	err := svc.Start(ctx, validStart())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic unavailable")

	state, err := svc.GetState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, state.Status)
	assert.NotEmpty(t, state.Error)
}

func TestGetStateUnknownSession(t *testing.T) {
	svc := &services.PipelineService{Jobs: services.NewMemoryJobStore(), Dispatcher: &recordingDispatcher{}}
	_, err := svc.GetState(context.Background(), "nope")
	assert.ErrorIs(t, err, services.ErrJobNotFound)
}

func newSessionService(t *testing.T) (*services.SessionService, *recordingDispatcher) {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	jobs := services.NewMemoryJobStore()
	root := t.TempDir()
	return &services.SessionService{
		Sessions: services.NewMemorySessionStore(),
		Jobs:     jobs,
		Storage:  services.NewLocalStorage(filepath.Join(root, "videos"), "/api/v1/videos"),
		Pipeline: &services.PipelineService{Jobs: jobs, Dispatcher: dispatcher, Routes: newRoutes()},
		ImageDir: filepath.Join(root, "images"),
		WorkDir:  filepath.Join(root, "work"),
		Defaults: services.SessionDefaults{
			Provider: model.DefaultProvider,
			Model:    model.DefaultModel,
			Strategy: model.DefaultStrategy,
		},
	}, dispatcher
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, dispatcher := newSessionService(t)

	session, err := svc.Create(ctx, services.CreateSessionRequest{SourceURL: "https://example.com/v", ProductName: "Mug"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, 1, session.NumVariants)
	assert.Equal(t, model.DefaultModel, session.Model)

	img := filepath.Join(t.TempDir(), "upload")
	test.WritePNG(t, img)
	session, err = svc.AttachImage(ctx, session.SessionID, img)
	require.NoError(t, err)
	assert.Equal(t, "product.png", filepath.Base(session.ProductImagePath))
	assert.FileExists(t, session.ProductImagePath)

	require.NoError(t, svc.Generate(ctx, session.SessionID))
	require.Len(t, dispatcher.tasks, 1)
	assert.Equal(t, session.ProductImagePath, dispatcher.tasks[0].ProductImagePath)

	// The queued task would still run after a purge.
	assert.ErrorIs(t, svc.Delete(ctx, session.SessionID), services.ErrSessionBusy)
	state, err := svc.Pipeline.GetState(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, state.Status)

	state.Status = model.JobCompleted
	require.NoError(t, svc.Jobs.Save(ctx, state))
	require.NoError(t, svc.Delete(ctx, session.SessionID))
	_, err = svc.Get(ctx, session.SessionID)
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
	_, err = svc.Pipeline.GetState(ctx, session.SessionID)
	assert.ErrorIs(t, err, services.ErrJobNotFound)
	assert.NoDirExists(t, filepath.Dir(session.ProductImagePath))
}

func TestSessionCreateRejectsInvalid(t *testing.T) {
	svc, _ := newSessionService(t)
	_, err := svc.Create(context.Background(), services.CreateSessionRequest{ProductName: "Mug"})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
	_, err = svc.Create(context.Background(), services.CreateSessionRequest{
		SourceURL: "https://example.com/v", ProductName: "Mug", Model: model.ModelSora2Pro,
	})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestSessionAttachRejectsNonImage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)
	session, err := svc.Create(ctx, services.CreateSessionRequest{SourceURL: "https://example.com/v", ProductName: "Mug"})
	require.NoError(t, err)

	bogus := filepath.Join(t.TempDir(), "upload")
	require.NoError(t, os.WriteFile(bogus, []byte("plain text, not an image"), 0o644))
	_, err = svc.AttachImage(ctx, session.SessionID, bogus)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestSessionDeleteRefusesRunningJob(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)
	session, err := svc.Create(ctx, services.CreateSessionRequest{SourceURL: "https://example.com/v", ProductName: "Mug"})
	require.NoError(t, err)
	state := model.NewJobState(session.SessionID, 1)
	state.Status = model.JobGenerating
	require.NoError(t, svc.Jobs.Save(ctx, state))

	assert.ErrorIs(t, svc.Delete(ctx, session.SessionID), services.ErrSessionBusy)
}

func TestEstimateCost(t *testing.T) {
	est, err := services.EstimateCost(model.ProviderKieAI, model.ModelVeo31Fast, model.StrategySegments, 2, 20)
	require.NoError(t, err)
	assert.Greater(t, est.ClipsPerVariant, 1)
	assert.InDelta(t, est.CostPerClip*float64(est.ClipsPerVariant)*2, est.TotalCost, 1e-9)

	seamless, err := services.EstimateCost(model.ProviderKieAI, model.ModelVeo31Fast, model.StrategySeamless, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, seamless.ClipsPerVariant)

	_, err = services.EstimateCost(model.ProviderKieAI, model.ModelVeo31Fast, model.StrategySegments, 1, 0)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
	_, err = services.EstimateCost(model.ProviderKieAI, model.ModelVeo31Fast, model.StrategySegments, 0, 10)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}
