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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// maxErrorBody bounds how much of an error response ends up in messages.
const maxErrorBody = 512

// jsonAPI is the bearer-token JSON transport shared by the adapters.
type jsonAPI struct {
	provider model.Provider
	baseURL  string
	http     *http.Client
}

func newJSONAPI(provider model.Provider, baseURL string, client *http.Client) jsonAPI {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return jsonAPI{provider: provider, baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// post submits payload; every failure is a SubmissionError.
func (a jsonAPI) post(ctx context.Context, path, apiKey string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SubmissionError{Provider: a.provider, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &SubmissionError{Provider: a.provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	status, out, err := a.do(req, apiKey)
	if err != nil {
		return nil, &SubmissionError{Provider: a.provider, StatusCode: status, Err: err}
	}
	return out, nil
}

func (a jsonAPI) get(ctx context.Context, path, apiKey string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	_, out, err := a.do(req, apiKey)
	return out, err
}

func (a jsonAPI) do(req *http.Request, apiKey string) (int, map[string]any, error) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return resp.StatusCode, nil, fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, strings.TrimSpace(string(raw)))
	}

	out := make(map[string]any)
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, out, nil
}

// errNoTaskID is returned when a submission response carries no task id.
var errNoTaskID = errors.New("response carries no task id")

// taskIDFrom reads task_id or id, at the top level or under data.
func taskIDFrom(body map[string]any) (string, error) {
	for _, scope := range []map[string]any{body, object(body, "data")} {
		for _, key := range []string{"task_id", "id"} {
			if id := scalar(scope[key]); id != "" {
				return id, nil
			}
		}
	}
	return "", errNoTaskID
}

// statusScope returns the object holding the status field: the body itself or
// its data envelope.
func statusScope(body map[string]any) map[string]any {
	if _, ok := body["status"]; !ok {
		if data := object(body, "data"); data != nil {
			return data
		}
	}
	return body
}

// stringAt follows a path of object keys and returns the string found there.
func stringAt(body map[string]any, path ...string) string {
	current := body
	for i, key := range path {
		if current == nil {
			return ""
		}
		if i == len(path)-1 {
			return scalar(current[key])
		}
		current = object(current, key)
	}
	return ""
}

func object(body map[string]any, key string) map[string]any {
	if body == nil {
		return nil
	}
	m, _ := body[key].(map[string]any)
	return m
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// errorMessage picks the most descriptive failure reason a provider sent.
func errorMessage(scope map[string]any) string {
	for _, key := range []string{"error", "message", "fail_reason"} {
		if msg := scalar(scope[key]); msg != "" {
			return msg
		}
		if nested := object(scope, key); nested != nil {
			if msg := scalar(nested["message"]); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// seconds rounds a requested duration to whole seconds within [1, limit].
func seconds(d, limit float64) int {
	d = math.Min(d, limit)
	if d < 1 {
		d = 1
	}
	return int(math.Round(d))
}
