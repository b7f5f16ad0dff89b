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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// SourceBaseName is the file name, without extension, of a downloaded source video.
const SourceBaseName = "original"

// ErrSourceNotFound is returned when yt-dlp exits cleanly but leaves no file behind.
var ErrSourceNotFound = errors.New("video download failed - file not found")

// YtDlpSource downloads social media videos with yt-dlp.
type YtDlpSource struct {
	runner *Runner
	path   string
	prober *Prober
}

func NewYtDlpSource(runner *Runner, ytDlpPath string, prober *Prober) *YtDlpSource {
	return &YtDlpSource{runner: runner, path: ytDlpPath, prober: prober}
}

type ytDlpInfo struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// Download fetches url into destDir. A url naming an existing local file is
// used in place, which is how local test runs feed a video in.
func (s *YtDlpSource) Download(ctx context.Context, url, destDir string) (*model.SourceVideo, error) {
	if local := strings.TrimPrefix(url, "file://"); fileExists(local) {
		return s.describe(ctx, local, &ytDlpInfo{Title: filepath.Base(local)})
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	res, err := s.runner.Run(ctx, s.path,
		"-f", "best[ext=mp4]/best",
		"-o", filepath.Join(destDir, SourceBaseName+".%(ext)s"),
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		"--no-simulate",
		"--dump-json",
		url,
	)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	info := &ytDlpInfo{}
	if len(res.Stdout) > 0 {
		if err := json.Unmarshal(res.Stdout, info); err != nil {
			slog.WarnContext(ctx, "unreadable yt-dlp metadata", "error", err)
		}
	}

	for _, ext := range []string{"mp4", "webm", "mkv", "mov"} {
		candidate := filepath.Join(destDir, SourceBaseName+"."+ext)
		if fileExists(candidate) {
			return s.describe(ctx, candidate, info)
		}
	}
	return nil, ErrSourceNotFound
}

// describe completes the metadata with ffprobe, which is more reliable than
// what the site reports.
func (s *YtDlpSource) describe(ctx context.Context, path string, info *ytDlpInfo) (*model.SourceVideo, error) {
	out := &model.SourceVideo{
		LocalPath: path,
		Duration:  info.Duration,
		Width:     info.Width,
		Height:    info.Height,
		Title:     info.Title,
	}
	if s.prober == nil {
		return out, nil
	}
	probe, err := s.prober.Probe(ctx, path)
	if err != nil {
		if out.Duration > 0 {
			slog.WarnContext(ctx, "probe failed, using reported duration", "error", err)
			return out, nil
		}
		return nil, err
	}
	if probe.Duration > 0 {
		out.Duration = probe.Duration
	}
	if probe.Width > 0 {
		out.Width, out.Height = probe.Width, probe.Height
	}
	return out, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
