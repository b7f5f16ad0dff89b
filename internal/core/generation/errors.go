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
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// ErrUnknownRoute is returned by the Registry for a (provider, model) pair no
// client serves.
var ErrUnknownRoute = errors.New("unknown provider/model combination")

// SubmissionError is a non-2xx or transport failure while submitting a task.
// It is not retried by the client.
type SubmissionError struct {
	Provider   model.Provider
	StatusCode int // 0 when the request never got a response.
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("submission to %s failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submission to %s failed: %v", e.Provider, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollingTimeout is returned when the attempt ceiling is reached without a
// terminal status. The provider side task may still be running.
type PollingTimeout struct {
	TaskID   string
	Attempts int
}

func (e *PollingTimeout) Error() string { return "Generation timed out" }

// ProviderReportedFailure covers an explicit failed status and a completed
// status that carries no video URL.
type ProviderReportedFailure struct {
	TaskID string
	Reason string
}

func (e *ProviderReportedFailure) Error() string {
	if e.Reason == "" {
		return "provider reported failure"
	}
	return "provider reported failure: " + e.Reason
}

// DownloadError is a failure fetching the finished video.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("downloading generated video: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
