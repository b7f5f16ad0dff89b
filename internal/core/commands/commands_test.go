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

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/prompts"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/segment"
)

// recordingStore keeps every saved snapshot.
type recordingStore struct {
	mu      sync.Mutex
	current map[string]*model.JobState
	history []*model.JobState
	failOn  int // fail the n-th save when > 0
}

func newRecordingStore() *recordingStore {
	return &recordingStore{current: make(map[string]*model.JobState)}
}

func (s *recordingStore) Get(_ context.Context, id string) (*model.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.current[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return state.Clone(), nil
}

func (s *recordingStore) Save(_ context.Context, state *model.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn > 0 && len(s.history)+1 == s.failOn {
		return errors.New("disk full")
	}
	s.current[state.SessionID] = state.Clone()
	s.history = append(s.history, state.Clone())
	return nil
}

func (s *recordingStore) progressHistory() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, h.Progress)
	}
	return out
}

type fakeSource struct {
	duration float64
	err      error
}

func (f *fakeSource) Download(_ context.Context, _ string, destDir string) (*model.SourceVideo, error) {
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(destDir, "original.mp4")
	if err := os.WriteFile(path, []byte("source"), 0o644); err != nil {
		return nil, err
	}
	return &model.SourceVideo{LocalPath: path, Duration: f.duration}, nil
}

type fakeDetector struct {
	scenes []model.TimeSpan
	err    error
}

func (f *fakeDetector) Detect(context.Context, string, float64) ([]model.TimeSpan, error) {
	return f.scenes, f.err
}

// fakeClient succeeds unless the (variant, clip) slot is listed in failures.
type fakeClient struct {
	mu       sync.Mutex
	dir      string
	failures map[[2]int]bool
	requests []model.GenerationRequest
}

func (f *fakeClient) SubmitAndAwait(_ context.Context, req model.GenerationRequest) model.GenerationResult {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.failures[[2]int{req.VariantIndex, req.ClipIndex}]
	f.mu.Unlock()
	if fail {
		return model.GenerationResult{Success: false, Error: "provider reported failure", Provider: req.Provider, Model: req.Model}
	}
	path := filepath.Join(f.dir, req.OutputName())
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		return model.GenerationResult{Error: err.Error()}
	}
	return model.GenerationResult{Success: true, VideoPath: path, CostEstimate: 0.3, Provider: req.Provider, Model: req.Model}
}

func (f *fakeClient) request(variant, clip int) model.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.VariantIndex == variant && r.ClipIndex == clip {
			return r
		}
	}
	return model.GenerationRequest{}
}

type fakeRegistry struct{ client generation.Client }

func (r *fakeRegistry) ClientFor(provider model.Provider, m model.ModelName) (generation.Client, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: %s/%s", generation.ErrUnknownRoute, provider, m)
	}
	return r.client, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []string
	failFor map[string]bool
}

func (f *fakeStorage) Upload(_ context.Context, sessionID, localFile, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[name] {
		return "", errors.New("bucket unavailable")
	}
	f.uploads = append(f.uploads, name)
	return "/api/v1/videos/" + sessionID + "/" + name, nil
}

type fakeChainer struct {
	fail bool
}

func (f *fakeChainer) ExtractLastFrame(_ context.Context, videoPath string) (string, error) {
	if f.fail {
		return "", errors.New("ffmpeg exploded")
	}
	frame := videoPath + "_last_frame.jpg"
	return frame, os.WriteFile(frame, []byte("jpg"), 0o644)
}

type countMismatch struct{}

func (countMismatch) Generate(context.Context, prompts.Request) (*model.PromptPlan, error) {
	return &model.PromptPlan{Clips: []model.ClipPrompt{{ClipIndex: 0, Prompt: "only one"}}}, nil
}

type harness struct {
	store    *recordingStore
	source   *fakeSource
	detector *fakeDetector
	client   *fakeClient
	registry *fakeRegistry
	storage  *fakeStorage
	chainer  *fakeChainer
	prompts  commands.PromptGenerator
	workDir  string
	task     *model.PipelineTask
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	genDir := t.TempDir()
	client := &fakeClient{dir: genDir, failures: make(map[[2]int]bool)}
	product := filepath.Join(t.TempDir(), "product.png")
	require.NoError(t, os.WriteFile(product, []byte("png"), 0o644))
	store := newRecordingStore()
	store.current["s1"] = model.NewJobState("s1", 2)
	return &harness{
		store:    store,
		source:   &fakeSource{duration: 16},
		detector: &fakeDetector{scenes: []model.TimeSpan{{Start: 0, End: 8}, {Start: 8, End: 16}}},
		client:   client,
		registry: &fakeRegistry{client: client},
		storage:  &fakeStorage{failFor: make(map[string]bool)},
		chainer:  &fakeChainer{},
		prompts:  &prompts.TemplatePromptGenerator{},
		workDir:  t.TempDir(),
		task: &model.PipelineTask{
			SessionID:        "s1",
			SourceURL:        "https://example.com/v",
			ProductName:      "Lamp",
			ProductImagePath: product,
			NumVariants:      2,
			Provider:         model.ProviderKieAI,
			Model:            model.ModelVeo31Fast,
			Strategy:         model.StrategySegments,
			Attempt:          1,
		},
	}
}

func (h *harness) run(t *testing.T) cor.Context {
	t.Helper()
	chain := cor.NewBaseChain("clone-test")
	chain.AddCommand(commands.NewPipelineTaskReader("pipeline-task-reader", h.store, h.workDir))
	chain.AddCommand(commands.NewSourceVideoDownload("source-video-download", h.source))
	chain.AddCommand(commands.NewSceneDetectorCommand("scene-detector", h.detector))
	chain.AddCommand(commands.NewClipSegmenter("clip-segmenter"))
	chain.AddCommand(commands.NewClipPromptCreator("clip-prompt-creator", h.prompts))
	chain.AddCommand(commands.NewVariantGenerator("variant-generator", h.registry, h.storage, h.chainer, 2))
	chain.AddCommand(commands.NewJobFinalizer("job-finalizer"))

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, h.task)
	chain.Execute(chCtx)
	return chCtx
}

func (h *harness) state(t *testing.T) *model.JobState {
	t.Helper()
	state, err := h.store.Get(context.Background(), h.task.SessionID)
	require.NoError(t, err)
	return state
}

func assertMonotone(t *testing.T, progress []float64) {
	t.Helper()
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards at write %d: %v", i, progress)
	}
}

func TestPipelineCompletes(t *testing.T) {
	h := newHarness(t)
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())

	state := h.state(t)
	assert.Equal(t, model.JobCompleted, state.Status)
	assert.Equal(t, 100.0, state.Progress)
	assert.Equal(t, 2, state.SceneCount)
	assert.Equal(t, 16.0, state.OriginalDuration)
	assert.Equal(t, 2, state.VariantsCompleted)
	require.Len(t, state.Variants, 2)
	for i, v := range state.Variants {
		assert.Equal(t, i, v.VariantIndex)
		assert.Equal(t, model.VariantCompleted, v.Status)
		require.Len(t, v.Clips, 2)
		assert.False(t, v.Clips[0].Chained)
		assert.True(t, v.Clips[1].Chained)
		assert.Equal(t, "/api/v1/videos/s1/"+model.ClipFileName(i, 1), v.Clips[1].VideoURL)
		assert.InDelta(t, 0.6, v.TotalCost, 1e-9)
	}
	assert.InDelta(t, 1.2, state.TotalCost, 1e-9)
	assert.Len(t, h.storage.uploads, 4)

	assert.Equal(t, h.task.ProductImagePath, h.client.request(0, 0).SeedImage)
	assert.Contains(t, h.client.request(0, 1).SeedImage, "_last_frame.jpg")
	assert.Equal(t, 1, h.client.request(1, 0).SlotIndex-h.client.request(0, 1).SlotIndex)

	assertMonotone(t, h.store.progressHistory())
}

func TestFailedClipDoesNotChain(t *testing.T) {
	h := newHarness(t)
	h.source.duration = 24
	h.detector.scenes = []model.TimeSpan{{Start: 0, End: 8}, {Start: 8, End: 16}, {Start: 16, End: 24}}
	h.client.failures[[2]int{0, 0}] = true
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())

	state := h.state(t)
	assert.Equal(t, model.JobCompleted, state.Status)
	v0 := state.Variants[0]
	require.Len(t, v0.Clips, 3)
	assert.Equal(t, model.VariantPartial, v0.Status)
	assert.Equal(t, model.ClipFailed, v0.Clips[0].Status)
	assert.NotEmpty(t, v0.Clips[0].Error)
	assert.Zero(t, v0.Clips[0].Cost)

	// clip 1 falls back to the product image, clip 2 chains from clip 1 again
	assert.Equal(t, model.ClipCompleted, v0.Clips[1].Status)
	assert.False(t, v0.Clips[1].Chained)
	assert.Equal(t, h.task.ProductImagePath, h.client.request(0, 1).SeedImage)
	assert.Equal(t, model.ClipCompleted, v0.Clips[2].Status)
	assert.True(t, v0.Clips[2].Chained)
	assert.Equal(t, filepath.Join(h.client.dir, model.ClipFileName(0, 1))+"_last_frame.jpg", h.client.request(0, 2).SeedImage)
	assert.InDelta(t, 0.6, v0.TotalCost, 1e-9)

	assert.Equal(t, model.VariantCompleted, state.Variants[1].Status)
	assert.InDelta(t, 1.5, state.TotalCost, 1e-9)
}

func TestGeneratedClipsAreRemovedWithTheAttempt(t *testing.T) {
	h := newHarness(t)
	h.task.NumVariants = 1
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())

	download := filepath.Join(h.client.dir, model.ClipFileName(0, 0))
	assert.FileExists(t, download)
	assert.FileExists(t, download+"_last_frame.jpg")
	assert.Len(t, h.storage.uploads, 2)

	chCtx.Close()
	assert.NoFileExists(t, download)
	assert.NoFileExists(t, download+"_last_frame.jpg")
	assert.NoFileExists(t, filepath.Join(h.client.dir, model.ClipFileName(0, 1)))
}

func TestUploadFailureMarksClipFailed(t *testing.T) {
	h := newHarness(t)
	h.task.NumVariants = 1
	h.storage.failFor[model.ClipFileName(0, 0)] = true
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())

	v := h.state(t).Variants[0]
	assert.Equal(t, model.ClipFailed, v.Clips[0].Status)
	assert.Contains(t, v.Clips[0].Error, "upload failed")
	assert.Equal(t, model.VariantPartial, v.Status)
	assert.False(t, v.Clips[1].Chained)
}

func TestChainingFailureFallsBackToProductImage(t *testing.T) {
	h := newHarness(t)
	h.task.NumVariants = 1
	h.chainer.fail = true
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())

	v := h.state(t).Variants[0]
	assert.Equal(t, model.VariantCompleted, v.Status)
	assert.False(t, v.Clips[1].Chained)
	assert.Equal(t, h.task.ProductImagePath, h.client.request(0, 1).SeedImage)
}

func TestNoProductImageStillChains(t *testing.T) {
	h := newHarness(t)
	h.task.NumVariants = 1
	h.task.ProductImagePath = ""
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())

	assert.Empty(t, h.client.request(0, 0).SeedImage)
	assert.True(t, h.state(t).Variants[0].Clips[1].Chained)
}

func TestSeamlessUsesOneClip(t *testing.T) {
	h := newHarness(t)
	h.task.NumVariants = 1
	h.task.Strategy = model.StrategySeamless
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())

	v := h.state(t).Variants[0]
	require.Len(t, v.Clips, 1)
	assert.Equal(t, 8.0, v.Clips[0].Duration)
}

func TestSceneDetectionFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.detector.err = errors.New("ffmpeg missing")
	chCtx := h.run(t)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.Err())
	assert.Equal(t, 0, h.state(t).SceneCount)
	assert.Equal(t, model.JobCompleted, h.state(t).Status)
}

func TestZeroDurationIsFatal(t *testing.T) {
	h := newHarness(t)
	h.source.duration = 0
	chCtx := h.run(t)
	require.True(t, chCtx.HasErrors())
	var segErr *segment.SegmentationError
	assert.ErrorAs(t, chCtx.Err(), &segErr)
	assert.Empty(t, h.client.requests)
}

func TestPromptCountMismatchIsFatal(t *testing.T) {
	h := newHarness(t)
	h.prompts = countMismatch{}
	chCtx := h.run(t)
	require.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.Err(), prompts.ErrPromptCount)
}

func TestUnknownRouteIsFatal(t *testing.T) {
	h := newHarness(t)
	h.registry.client = nil
	chCtx := h.run(t)
	require.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.Err(), generation.ErrUnknownRoute)
}

func TestDownloadFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.source.err = errors.New("yt-dlp: video unavailable")
	chCtx := h.run(t)
	require.True(t, chCtx.HasErrors())
	assert.Equal(t, model.JobDownloading, h.state(t).Status)
	assert.Equal(t, commands.ProgressDownloadStart, h.state(t).Progress)
}

func TestReaderRejectsBadJSON(t *testing.T) {
	h := newHarness(t)
	reader := commands.NewPipelineTaskReader("pipeline-task-reader", h.store, h.workDir)
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, "{not json")
	reader.Execute(chCtx)
	assert.True(t, chCtx.HasErrors())
	assert.Nil(t, commands.TrackerFrom(chCtx))
}

func TestReaderResetsPreviousAttempt(t *testing.T) {
	h := newHarness(t)
	old := model.NewJobState("s1", 2)
	old.Status = model.JobFailed
	old.Progress = 72
	old.Error = "boom"
	require.NoError(t, h.store.Save(context.Background(), old))

	h.task.Attempt = 2
	reader := commands.NewPipelineTaskReader("pipeline-task-reader", h.store, h.workDir)
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, `{"session_id":"s1","num_variants":2,"attempt":2}`)
	reader.Execute(chCtx)
	require.False(t, chCtx.HasErrors())

	state := h.state(t)
	assert.Equal(t, model.JobPending, state.Status)
	assert.Zero(t, state.Progress)
	assert.Empty(t, state.Error)
	assert.Equal(t, 2, state.Attempt)
	assert.DirExists(t, chCtx.Get(commands.WorkDirKey).(string))

	chCtx.Close()
	assert.NoDirExists(t, chCtx.Get(commands.WorkDirKey).(string))
}

func TestReaderUsesDeliveryAttempt(t *testing.T) {
	h := newHarness(t)
	reader := commands.NewPipelineTaskReader("pipeline-task-reader", h.store, h.workDir)
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, `{"session_id":"s1","num_variants":1}`)
	chCtx.Add(cor.CtxAttempt, 3)
	reader.Execute(chCtx)
	require.False(t, chCtx.HasErrors())
	defer chCtx.Close()

	assert.Equal(t, 3, commands.TaskFrom(chCtx).Attempt)
	assert.Equal(t, 3, h.state(t).Attempt)
}

func TestReaderFailsWhenJobWasDeleted(t *testing.T) {
	h := newHarness(t)
	delete(h.store.current, "s1")

	chCtx := h.run(t)
	require.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.Err(), model.ErrJobNotFound)
	assert.Empty(t, h.store.history, "no job is recreated for a deleted session")
	assert.Empty(t, h.client.requests)
}
