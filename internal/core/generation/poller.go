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

package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

const instrumentationName = "github.com/jaycherian/gcp-go-video-clone/generation"

// Defaults used when Options leaves a value at zero.
const (
	DefaultPollInterval     = 5 * time.Second
	DefaultMaxPollAttempts  = 60
	DefaultSlowPollAttempts = 120
	DefaultHTTPTimeout      = 60 * time.Second
)

// TaskStatus is a provider status mapped onto the client's vocabulary.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// NormalizeStatus maps a provider status string. Anything unknown is pending.
func NormalizeStatus(s string) TaskStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "success":
		return TaskCompleted
	case "failed", "error":
		return TaskFailed
	default:
		return TaskPending
	}
}

// SubmitOptions is the provider neutral content of a submission.
type SubmitOptions struct {
	Prompt    string
	Model     model.ModelName
	Duration  float64
	SeedImage []byte // Nil for text-to-video.
	SeedMIME  string
}

// PollResult is one status check of a submitted task.
type PollResult struct {
	Status   TaskStatus
	VideoURL string
	Error    string
}

// Adapter hides the request and response shapes of one provider.
type Adapter interface {
	Provider() model.Provider
	// KeyName is the secret passed to the KeyResolver before each submission.
	KeyName() string
	Submit(ctx context.Context, apiKey string, opts SubmitOptions) (taskID string, err error)
	Poll(ctx context.Context, apiKey, taskID string) (PollResult, error)
}

// Options tunes a PollingClient.
type Options struct {
	PollInterval     time.Duration
	MaxPollAttempts  int
	SlowPollAttempts int               // Ceiling used for the models in SlowModels.
	SlowModels       []model.ModelName // Defaults to veo-3.1-quality and sora-2-pro.
	RateLimit        float64           // Submissions per second, 0 disables the limiter.
	HTTPTimeout      time.Duration
	OutputDir        string
	HTTPClient       *http.Client // Used for downloads.
}

// PollingClient is the SUBMITTED -> COMPLETED | FAILED | TIMED_OUT state
// machine shared by every provider.
type PollingClient struct {
	adapter     Adapter
	keys        cloud.KeyResolver
	options     Options
	slow        map[model.ModelName]bool
	limiter     *rate.Limiter
	http        *http.Client
	tracer      trace.Tracer
	pollCounter metric.Int64Counter
}

func NewPollingClient(adapter Adapter, keys cloud.KeyResolver, options Options) *PollingClient {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.MaxPollAttempts <= 0 {
		options.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if options.SlowPollAttempts <= 0 {
		options.SlowPollAttempts = DefaultSlowPollAttempts
	}
	if options.SlowModels == nil {
		options.SlowModels = []model.ModelName{model.ModelVeo31Quality, model.ModelSora2Pro}
	}
	if options.HTTPTimeout <= 0 {
		options.HTTPTimeout = DefaultHTTPTimeout
	}
	if options.OutputDir == "" {
		options.OutputDir = os.TempDir()
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		// Downloads can be large, so only the wait for response headers is bounded.
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = options.HTTPTimeout
		httpClient = &http.Client{Transport: transport}
	}
	slow := make(map[model.ModelName]bool)
	for _, m := range options.SlowModels {
		slow[m] = true
	}

	var limiter *rate.Limiter
	if options.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(options.RateLimit), 1)
	}

	name := fmt.Sprintf("generation.%s.poll", adapter.Provider())
	counter, err := otel.Meter(instrumentationName).Int64Counter(name)
	if err != nil {
		slog.Warn("error creating poll counter", "name", name, "error", err)
	}

	return &PollingClient{
		adapter:     adapter,
		keys:        keys,
		options:     options,
		slow:        slow,
		limiter:     limiter,
		http:        httpClient,
		tracer:      otel.Tracer(instrumentationName),
		pollCounter: counter,
	}
}

// Ceiling is the number of status checks allowed for m.
func (c *PollingClient) Ceiling(m model.ModelName) int {
	if c.slow[m] {
		return c.options.SlowPollAttempts
	}
	return c.options.MaxPollAttempts
}

// SubmitAndAwait submits req, waits for a terminal status and downloads the
// video to <OutputDir>/<session>/<slot file name>.
func (c *PollingClient) SubmitAndAwait(ctx context.Context, req model.GenerationRequest) (result model.GenerationResult) {
	result = model.GenerationResult{Provider: req.Provider, Model: req.Model}

	ctx, span := c.tracer.Start(ctx, "generation.submit_and_await")
	span.SetAttributes(
		attribute.String("provider", string(req.Provider)),
		attribute.String("model", string(req.Model)),
		attribute.String("session_id", req.SessionID),
		attribute.Int("slot_index", req.SlotIndex),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "generation client panic", "provider", req.Provider, "panic", r)
			result = model.GenerationResult{Provider: req.Provider, Model: req.Model, Error: fmt.Sprintf("generation panic: %v", r)}
		}
	}()

	path, err := c.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "clip generation failed",
			"session_id", req.SessionID, "slot", req.SlotIndex, "provider", req.Provider, "model", req.Model, "error", err)
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.VideoPath = path
	result.CostEstimate = CostFor(req.Provider, req.Model)
	return result
}

func (c *PollingClient) run(ctx context.Context, req model.GenerationRequest) (string, error) {
	provider := c.adapter.Provider()

	apiKey, err := c.keys.Resolve(ctx, c.adapter.KeyName())
	if err != nil {
		return "", &SubmissionError{Provider: provider, Err: err}
	}

	opts := SubmitOptions{Prompt: req.Prompt, Model: req.Model, Duration: req.TargetDuration}
	if req.SeedImage != "" {
		seed, err := os.ReadFile(req.SeedImage)
		if err != nil {
			return "", &SubmissionError{Provider: provider, Err: fmt.Errorf("reading seed image: %w", err)}
		}
		opts.SeedImage = seed
		opts.SeedMIME = "image/jpeg"
		if kind, err := filetype.Match(seed); err == nil && kind != filetype.Unknown {
			opts.SeedMIME = kind.MIME.Value
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &SubmissionError{Provider: provider, Err: err}
		}
	}

	taskID, err := c.adapter.Submit(ctx, apiKey, opts)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "generation submitted",
		"session_id", req.SessionID, "slot", req.SlotIndex, "provider", provider, "task_id", taskID, "seeded", opts.SeedImage != nil)

	url, err := c.await(ctx, apiKey, taskID, c.Ceiling(req.Model))
	if err != nil {
		return "", err
	}

	dest := filepath.Join(c.options.OutputDir, req.SessionID, req.OutputName())
	if err := c.download(ctx, url, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// await polls until a terminal status or the attempt ceiling. Poll transport
// errors count as a pending attempt.
func (c *PollingClient) await(ctx context.Context, apiKey, taskID string, ceiling int) (string, error) {
	for attempt := 1; attempt <= ceiling; attempt++ {
		res, err := c.adapter.Poll(ctx, apiKey, taskID)
		if c.pollCounter != nil {
			c.pollCounter.Add(ctx, 1)
		}
		if err != nil {
			slog.WarnContext(ctx, "poll failed", "task_id", taskID, "attempt", attempt, "error", err)
		} else {
			switch res.Status {
			case TaskCompleted:
				if res.VideoURL == "" {
					return "", &ProviderReportedFailure{TaskID: taskID, Reason: "completed without a video url"}
				}
				return res.VideoURL, nil
			case TaskFailed:
				return "", &ProviderReportedFailure{TaskID: taskID, Reason: res.Error}
			}
		}
		if attempt == ceiling {
			break
		}

		timer := time.NewTimer(c.options.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("waiting for task %s: %w", taskID, ctx.Err())
		case <-timer.C:
		}
	}
	return "", &PollingTimeout{TaskID: taskID, Attempts: ceiling}
}

// download writes url to dest through a temporary file so a partial download
// never looks like a finished clip.
func (c *PollingClient) download(ctx context.Context, url, dest string) error {
	fail := func(err error) error { return &DownloadError{URL: url, Err: err} }

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fail(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fail(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fail(err)
	}
	return nil
}

// encodeSeed returns the base64 body of a seed image.
func encodeSeed(seed []byte) string {
	return base64.StdEncoding.EncodeToString(seed)
}
