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

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FrameExtractionError is returned when the last frame of a clip cannot be
// turned into a usable seed image. The pipeline treats it as non-fatal.
type FrameExtractionError struct {
	VideoPath string
	Err       error
}

func (e *FrameExtractionError) Error() string {
	return fmt.Sprintf("extracting last frame of %s: %v", filepath.Base(e.VideoPath), e.Err)
}

func (e *FrameExtractionError) Unwrap() error { return e.Err }

// FFmpegFrameChainer grabs the final frame of a clip so it can seed the next one.
type FFmpegFrameChainer struct {
	runner *Runner
	path   string
}

func NewFFmpegFrameChainer(runner *Runner, ffmpegPath string) *FFmpegFrameChainer {
	return &FFmpegFrameChainer{runner: runner, path: ffmpegPath}
}

// LastFramePath is where the frame of videoPath is written.
func LastFramePath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + "_last_frame.jpg"
}

// ExtractLastFrame seeks half a second before the end of videoPath and writes
// one high quality JPEG next to it.
func (c *FFmpegFrameChainer) ExtractLastFrame(ctx context.Context, videoPath string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &FrameExtractionError{VideoPath: videoPath, Err: err}
	}

	if _, err := os.Stat(videoPath); err != nil {
		return fail(err)
	}
	out := LastFramePath(videoPath)
	if _, err := c.runner.Run(ctx, c.path,
		"-sseof", "-0.5",
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", out,
	); err != nil {
		return fail(err)
	}
	if _, err := inspectImage(out); err != nil {
		_ = os.Remove(out)
		return fail(err)
	}
	return out, nil
}
