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

// Package media wraps the external binaries the pipeline shells out to:
// yt-dlp for the source video, ffprobe for its metadata and ffmpeg for scene
// detection and last frame extraction.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// maxStderrBytes is the tail of stderr kept for error messages.
const maxStderrBytes = 8 * 1024

// RunError is returned when a subprocess exits non-zero or cannot start.
type RunError struct {
	Command    string
	ExitCode   int // -1 when the process never ran or was killed.
	StderrTail string
	Err        error
}

func (e *RunError) Error() string {
	tail := strings.TrimSpace(e.StderrTail)
	if len(tail) > 512 {
		tail = "..." + tail[len(tail)-512:]
	}
	if tail == "" {
		return fmt.Sprintf("%s exited %d: %v", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s exited %d: %s", e.Command, e.ExitCode, tail)
}

func (e *RunError) Unwrap() error { return e.Err }

// Runner executes external commands with a per call timeout.
type Runner struct {
	Timeout time.Duration // Zero means no timeout beyond the caller's context.
}

func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout []byte
	Stderr string // Bounded tail.
}

// Run executes path with args and returns its stdout and the tail of stderr.
func (r *Runner) Run(ctx context.Context, path string, args ...string) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &tailWriter{buf: &stderr, limit: maxStderrBytes}

	err := cmd.Run()
	elapsed := time.Since(start)
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.String()}
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		slog.WarnContext(ctx, "command failed", "command", path, "exit_code", exitCode, "duration_ms", elapsed.Milliseconds())
		return res, &RunError{Command: path, ExitCode: exitCode, StderrTail: res.Stderr, Err: err}
	}
	slog.DebugContext(ctx, "command succeeded", "command", path, "duration_ms", elapsed.Milliseconds())
	return res, nil
}

// Available reports whether path resolves to an executable.
func Available(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.buf.Write(p)
	if w.buf.Len() > w.limit {
		b := w.buf.Bytes()
		tail := make([]byte, w.limit)
		copy(tail, b[len(b)-w.limit:])
		w.buf.Reset()
		w.buf.Write(tail)
	}
	return n, nil
}

var _ io.Writer = (*tailWriter)(nil)
