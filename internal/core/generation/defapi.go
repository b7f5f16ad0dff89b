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
	"fmt"
	"net/http"
	"net/url"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/segment"
)

// defapiModels maps our model names onto the model field defapi.org expects.
var defapiModels = map[model.ModelName]string{
	model.ModelDefAPIVeo31: "veo-3.1",
	model.ModelDefAPISora2: "sora-2",
}

const (
	defapiTextPath   = "/v1/video/generate"
	defapiImagePath  = "/v1/video/image-to-video"
	defapiStatusPath = "/v1/video/status/"
)

// DefAPIAdapter talks to api.defapi.org.
type DefAPIAdapter struct {
	api jsonAPI
}

func NewDefAPIAdapter(baseURL string, client *http.Client) *DefAPIAdapter {
	return &DefAPIAdapter{api: newJSONAPI(model.ProviderDefAPI, baseURL, client)}
}

func (d *DefAPIAdapter) Provider() model.Provider { return model.ProviderDefAPI }

func (d *DefAPIAdapter) KeyName() string { return cloud.KeyDefAPI }

// Submit posts {prompt, model, duration, reference_image}. The prompt is
// prefixed with the duration hint the Sora model reads.
func (d *DefAPIAdapter) Submit(ctx context.Context, apiKey string, opts SubmitOptions) (string, error) {
	remote, ok := defapiModels[opts.Model]
	if !ok {
		return "", &SubmissionError{Provider: model.ProviderDefAPI, Err: fmt.Errorf("%w: model %s", ErrUnknownRoute, opts.Model)}
	}
	limits := segment.LimitsFor(opts.Model)
	payload := map[string]any{
		"prompt":   segment.DurationPrefix(opts.Model, opts.Duration) + opts.Prompt,
		"model":    remote,
		"duration": seconds(opts.Duration, limits.MaxDuration),
	}
	path := defapiTextPath
	if opts.SeedImage != nil {
		path = defapiImagePath
		payload["reference_image"] = encodeSeed(opts.SeedImage)
	}

	body, err := d.api.post(ctx, path, apiKey, payload)
	if err != nil {
		return "", err
	}
	id, err := taskIDFrom(body)
	if err != nil {
		return "", &SubmissionError{Provider: model.ProviderDefAPI, Err: err}
	}
	return id, nil
}

// Poll reads GET /v1/video/status/{id}. The URL is in video_url or output_url.
func (d *DefAPIAdapter) Poll(ctx context.Context, apiKey, taskID string) (PollResult, error) {
	body, err := d.api.get(ctx, defapiStatusPath+url.PathEscape(taskID), apiKey)
	if err != nil {
		return PollResult{}, err
	}
	scope := statusScope(body)
	res := PollResult{Status: NormalizeStatus(scalar(scope["status"]))}
	switch res.Status {
	case TaskCompleted:
		res.VideoURL = stringAt(scope, "video_url")
		if res.VideoURL == "" {
			res.VideoURL = stringAt(scope, "output_url")
		}
	case TaskFailed:
		res.Error = errorMessage(scope)
	}
	return res, nil
}
