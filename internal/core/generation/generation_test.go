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

package generation_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

var videoBytes = []byte("\x00\x00\x00\x18ftypmp42fake-video")

// fakeProvider serves a submit endpoint, a status endpoint that walks through
// statuses and a download endpoint.
type fakeProvider struct {
	t          *testing.T
	submitPath string
	statusPath string
	statuses   []map[string]any
	submitCode int

	submits   atomic.Int32
	polls     atomic.Int32
	downloads atomic.Int32
	lastBody  map[string]any
	lastAuth  string
	srv       *httptest.Server
}

func newFakeProvider(t *testing.T, submitPath, statusPath string, statuses ...map[string]any) *fakeProvider {
	f := &fakeProvider{t: t, submitPath: submitPath, statusPath: statusPath, statuses: statuses, submitCode: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == f.submitPath:
		f.submits.Add(1)
		f.lastAuth = r.Header.Get("Authorization")
		body := make(map[string]any)
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.lastBody = body
		if f.submitCode != http.StatusOK {
			w.WriteHeader(f.submitCode)
			_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"task_id":"task-1"}`))
	case r.Method == http.MethodGet && r.URL.Path == f.statusPath+"task-1":
		n := int(f.polls.Add(1)) - 1
		if n >= len(f.statuses) {
			n = len(f.statuses) - 1
		}
		_ = json.NewEncoder(w).Encode(f.statuses[n])
	case r.URL.Path == "/files/clip.mp4":
		f.downloads.Add(1)
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(videoBytes)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeProvider) videoURL() string { return f.srv.URL + "/files/clip.mp4" }

func testOptions(t *testing.T, srv *httptest.Server) generation.Options {
	return generation.Options{
		PollInterval:     time.Millisecond,
		MaxPollAttempts:  3,
		SlowPollAttempts: 5,
		OutputDir:        t.TempDir(),
		HTTPClient:       srv.Client(),
	}
}

var keys = cloud.StaticKeys{cloud.KeyKieAI: "kie-key", cloud.KeyDefAPI: "def-key"}

func kieRequest() model.GenerationRequest {
	return model.GenerationRequest{
		Prompt:         "A woman holds GlowSerum",
		Provider:       model.ProviderKieAI,
		Model:          model.ModelVeo31Fast,
		TargetDuration: 8,
		SessionID:      "sess-1",
		VariantIndex:   0,
		ClipIndex:      1,
		SlotIndex:      1,
	}
}

func writeSeed(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "seed.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return path
}

func TestKie_CompletesAndDownloads(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "processing"},
		map[string]any{"status": "completed", "output": map[string]any{}},
	)
	f.statuses[1]["output"].(map[string]any)["video_url"] = f.videoURL()

	opts := testOptions(t, f.srv)
	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, opts)
	res := client.SubmitAndAwait(context.Background(), kieRequest())

	require.True(t, res.Success, res.Error)
	assert.Equal(t, filepath.Join(opts.OutputDir, "sess-1", "variant_00_clip_01.mp4"), res.VideoPath)
	assert.Equal(t, 0.40, res.CostEstimate)
	assert.Equal(t, model.ProviderKieAI, res.Provider)
	assert.Equal(t, model.ModelVeo31Fast, res.Model)
	assert.Equal(t, "Bearer kie-key", f.lastAuth)
	assert.Equal(t, float64(8), f.lastBody["duration"])
	assert.NotContains(t, f.lastBody, "image")
	assert.Equal(t, int32(2), f.polls.Load())

	content, err := os.ReadFile(res.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, videoBytes, content)
}

func TestKie_SeededUsesImageEndpoint(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast/image-to-video", "/v1/tasks/",
		map[string]any{"status": "success"})
	f.statuses[0]["video_url"] = f.videoURL()

	req := kieRequest()
	req.SeedImage = writeSeed(t)
	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	res := client.SubmitAndAwait(context.Background(), req)

	require.True(t, res.Success, res.Error)
	img, _ := f.lastBody["image"].(string)
	assert.True(t, strings.HasPrefix(img, "data:image/png;base64,"), img)
}

func TestKie_ProviderFailure(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "failed", "error": "content policy"})

	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	res := client.SubmitAndAwait(context.Background(), kieRequest())

	assert.False(t, res.Success)
	assert.Empty(t, res.VideoPath)
	assert.Zero(t, res.CostEstimate)
	assert.Equal(t, "provider reported failure: content policy", res.Error)
	assert.Zero(t, f.downloads.Load())
}

func TestKie_TimesOutAtCeiling(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "queued_somewhere_new"})

	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	res := client.SubmitAndAwait(context.Background(), kieRequest())

	assert.False(t, res.Success)
	assert.Equal(t, "Generation timed out", res.Error)
	assert.Equal(t, int32(3), f.polls.Load())
}

func TestKie_SlowModelCeiling(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/quality", "/v1/tasks/",
		map[string]any{"status": "running"})

	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	req := kieRequest()
	req.Model = model.ModelVeo31Quality
	res := client.SubmitAndAwait(context.Background(), req)

	assert.Equal(t, "Generation timed out", res.Error)
	assert.Equal(t, int32(5), f.polls.Load())
}

func TestKie_CompletedWithoutURL(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "completed"})

	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	res := client.SubmitAndAwait(context.Background(), kieRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "completed without a video url")
}

func TestKie_SubmissionError(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "completed"})
	f.submitCode = http.StatusPaymentRequired

	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	res := client.SubmitAndAwait(context.Background(), kieRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "status 402")
	assert.Contains(t, res.Error, "quota exceeded")
	assert.Zero(t, f.polls.Load())
}

func TestKie_DownloadError(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "completed"})
	f.statuses[0]["video_url"] = f.srv.URL + "/files/missing.mp4"

	opts := testOptions(t, f.srv)
	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, opts)
	res := client.SubmitAndAwait(context.Background(), kieRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "downloading generated video")
	assert.NoFileExists(t, filepath.Join(opts.OutputDir, "sess-1", "variant_00_clip_01.mp4"))
}

func TestKie_MissingKey(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "completed"})

	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), cloud.StaticKeys{}, testOptions(t, f.srv))
	res := client.SubmitAndAwait(context.Background(), kieRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "api key not configured")
	assert.Zero(t, f.submits.Load())
}

func TestKie_CanceledWhilePolling(t *testing.T) {
	f := newFakeProvider(t, "/v1/veo-3.1-generate-video/fast", "/v1/tasks/",
		map[string]any{"status": "pending"})

	opts := testOptions(t, f.srv)
	opts.PollInterval = time.Hour
	client := generation.NewPollingClient(generation.NewKieAdapter(f.srv.URL, f.srv.Client()), keys, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for f.polls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	res := client.SubmitAndAwait(ctx, kieRequest())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, context.Canceled.Error())
}

func TestDefAPI_SoraPrefixAndDataEnvelope(t *testing.T) {
	f := newFakeProvider(t, "/v1/video/generate", "/v1/video/status/",
		map[string]any{"data": map[string]any{"status": "in_progress"}},
		map[string]any{"data": map[string]any{"status": "success"}},
	)
	f.statuses[1]["data"].(map[string]any)["output_url"] = f.videoURL()

	client := generation.NewPollingClient(generation.NewDefAPIAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	req := kieRequest()
	req.Provider = model.ProviderDefAPI
	req.Model = model.ModelDefAPISora2
	req.TargetDuration = 9.6
	res := client.SubmitAndAwait(context.Background(), req)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 0.10, res.CostEstimate)
	assert.Equal(t, "Bearer def-key", f.lastAuth)
	assert.Equal(t, "(10s,hd) A woman holds GlowSerum", f.lastBody["prompt"])
	assert.Equal(t, "sora-2", f.lastBody["model"])
	assert.Equal(t, float64(10), f.lastBody["duration"])
}

func TestDefAPI_SeededUsesImageEndpoint(t *testing.T) {
	f := newFakeProvider(t, "/v1/video/image-to-video", "/v1/video/status/",
		map[string]any{"status": "completed"})
	f.statuses[0]["video_url"] = f.videoURL()

	seed := writeSeed(t)
	raw, err := os.ReadFile(seed)
	require.NoError(t, err)

	client := generation.NewPollingClient(generation.NewDefAPIAdapter(f.srv.URL, f.srv.Client()), keys, testOptions(t, f.srv))
	req := kieRequest()
	req.Provider = model.ProviderDefAPI
	req.Model = model.ModelDefAPIVeo31
	req.SeedImage = seed
	res := client.SubmitAndAwait(context.Background(), req)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), f.lastBody["reference_image"])
	assert.Equal(t, "A woman holds GlowSerum", f.lastBody["prompt"])
	assert.Equal(t, "veo-3.1", f.lastBody["model"])
}

func TestRegistry(t *testing.T) {
	config := cloud.NewConfig()
	registry := generation.NewProviderRegistry(config, keys, t.TempDir())

	assert.Len(t, registry.Routes(), 6)
	for _, route := range registry.Routes() {
		c, err := registry.ClientFor(route.Provider, route.Model)
		require.NoError(t, err)
		assert.NotNil(t, c)
		assert.Positive(t, generation.CostFor(route.Provider, route.Model), route.String())
	}

	_, err := registry.ClientFor(model.ProviderDefAPI, model.ModelVeo31Fast)
	assert.ErrorIs(t, err, generation.ErrUnknownRoute)
	assert.False(t, registry.Supports(model.ProviderKieAI, model.ModelDefAPISora2))
	assert.Zero(t, generation.CostFor("acme", "x"))
}

func TestPollingClient_Ceilings(t *testing.T) {
	client := generation.NewPollingClient(generation.NewKieAdapter("http://unused", nil), keys, generation.Options{})
	assert.Equal(t, 60, client.Ceiling(model.ModelVeo31Fast))
	assert.Equal(t, 60, client.Ceiling(model.ModelSora2))
	assert.Equal(t, 120, client.Ceiling(model.ModelVeo31Quality))
	assert.Equal(t, 120, client.Ceiling(model.ModelSora2Pro))
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]generation.TaskStatus{
		"completed":  generation.TaskCompleted,
		"SUCCESS":    generation.TaskCompleted,
		"failed":     generation.TaskFailed,
		"error":      generation.TaskFailed,
		"processing": generation.TaskPending,
		"":           generation.TaskPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, generation.NormalizeStatus(in), in)
	}
}
