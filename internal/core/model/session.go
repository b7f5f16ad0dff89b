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

package model

import "time"

// Session is the user facing request to clone one source video.
type Session struct {
	SessionID        string    `json:"session_id"`
	SourceURL        string    `json:"source_url"`
	ProductName      string    `json:"product_name"`
	ProductImagePath string    `json:"product_image_path,omitempty"`
	NumVariants      int       `json:"num_variants"`
	Provider         Provider  `json:"provider"`
	Model            ModelName `json:"model"`
	Strategy         Strategy  `json:"strategy"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PipelineTask is the work item handed to the job queue. It carries everything
// a worker needs so that it never reads the session record mid-run.
type PipelineTask struct {
	SessionID        string    `json:"session_id"`
	SourceURL        string    `json:"source_url"`
	ProductName      string    `json:"product_name"`
	ProductImagePath string    `json:"product_image_path,omitempty"`
	NumVariants      int       `json:"num_variants"`
	Provider         Provider  `json:"provider"`
	Model            ModelName `json:"model"`
	Strategy         Strategy  `json:"strategy"`
	Attempt          int       `json:"attempt"`
}

// TaskFromSession builds the first attempt of a pipeline task.
func TaskFromSession(s *Session) *PipelineTask {
	return &PipelineTask{
		SessionID:        s.SessionID,
		SourceURL:        s.SourceURL,
		ProductName:      s.ProductName,
		ProductImagePath: s.ProductImagePath,
		NumVariants:      s.NumVariants,
		Provider:         s.Provider,
		Model:            s.Model,
		Strategy:         s.Strategy,
		Attempt:          1,
	}
}

// SourceVideo is what the video source collaborator hands back.
type SourceVideo struct {
	LocalPath string  `json:"local_path"`
	Duration  float64 `json:"duration_seconds"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Title     string  `json:"title,omitempty"`
}
