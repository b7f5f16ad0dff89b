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

// kieRoutes are the text-to-video endpoints per model, below {base}/v1/.
var kieRoutes = map[model.ModelName]string{
	model.ModelVeo31Fast:    "veo-3.1-generate-video/fast",
	model.ModelVeo31Quality: "veo-3.1-generate-video/quality",
	model.ModelSora2:        "sora-2-generate-video",
	model.ModelSora2Pro:     "sora-2-pro-generate-video",
}

// kieImageSuffix selects the first-frame conditioned variant of a route.
const kieImageSuffix = "/image-to-video"

// KieAdapter talks to api.kie.ai.
type KieAdapter struct {
	api jsonAPI
}

// NewKieAdapter returns an adapter for baseURL. A nil client gets a default one.
func NewKieAdapter(baseURL string, client *http.Client) *KieAdapter {
	return &KieAdapter{api: newJSONAPI(model.ProviderKieAI, baseURL, client)}
}

func (k *KieAdapter) Provider() model.Provider { return model.ProviderKieAI }

func (k *KieAdapter) KeyName() string { return cloud.KeyKieAI }

// Submit posts {prompt, duration, image}. A seeded request goes to the image
// endpoint so the first frame of the clip is the seed.
func (k *KieAdapter) Submit(ctx context.Context, apiKey string, opts SubmitOptions) (string, error) {
	route, ok := kieRoutes[opts.Model]
	if !ok {
		return "", &SubmissionError{Provider: model.ProviderKieAI, Err: fmt.Errorf("%w: model %s", ErrUnknownRoute, opts.Model)}
	}
	limits := segment.LimitsFor(opts.Model)
	payload := map[string]any{
		"prompt":   opts.Prompt,
		"duration": seconds(opts.Duration, limits.MaxDuration),
	}
	if opts.SeedImage != nil {
		route += kieImageSuffix
		payload["image"] = fmt.Sprintf("data:%s;base64,%s", opts.SeedMIME, encodeSeed(opts.SeedImage))
	}

	body, err := k.api.post(ctx, "/v1/"+route, apiKey, payload)
	if err != nil {
		return "", err
	}
	id, err := taskIDFrom(body)
	if err != nil {
		return "", &SubmissionError{Provider: model.ProviderKieAI, Err: err}
	}
	return id, nil
}

// Poll reads GET /v1/tasks/{id}. The URL is in video_url or output.video_url.
func (k *KieAdapter) Poll(ctx context.Context, apiKey, taskID string) (PollResult, error) {
	body, err := k.api.get(ctx, "/v1/tasks/"+url.PathEscape(taskID), apiKey)
	if err != nil {
		return PollResult{}, err
	}
	scope := statusScope(body)
	res := PollResult{Status: NormalizeStatus(scalar(scope["status"]))}
	switch res.Status {
	case TaskCompleted:
		res.VideoURL = stringAt(scope, "video_url")
		if res.VideoURL == "" {
			res.VideoURL = stringAt(scope, "output", "video_url")
		}
	case TaskFailed:
		res.Error = errorMessage(scope)
	}
	return res, nil
}
