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

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidArtifactPath rejects names that would escape the storage root.
var ErrInvalidArtifactPath = errors.New("invalid artifact path")

// LocalStorage keeps artifacts on the local filesystem under root and serves
// them through the API's /videos route.
type LocalStorage struct {
	root      string
	urlPrefix string
}

func NewLocalStorage(root, urlPrefix string) *LocalStorage {
	return &LocalStorage{root: root, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

// Path resolves the file of a session, refusing anything outside the root.
func (l *LocalStorage) Path(sessionID, name string) (string, error) {
	for _, part := range []string{sessionID, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", ErrInvalidArtifactPath
		}
	}
	return filepath.Join(l.root, sessionID, name), nil
}

// Upload moves localFile into the session directory and returns its URL.
func (l *LocalStorage) Upload(_ context.Context, sessionID, localFile, name string) (string, error) {
	dest, err := l.Path(sessionID, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := MoveFile(localFile, dest); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", l.urlPrefix, url.PathEscape(sessionID), url.PathEscape(name)), nil
}

// DeleteSession removes every artifact of the session and reports whether
// anything was there.
func (l *LocalStorage) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	dir, err := l.Path(sessionID, "x")
	if err != nil {
		return false, err
	}
	dir = filepath.Dir(dir)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}

// MoveFile renames sourcePath to destPath, copying when they sit on
// different filesystems.
func MoveFile(sourcePath, destPath string) error {
	if err := os.Rename(sourcePath, destPath); err == nil {
		return nil
	}

	inputFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("could not open source file: %w", err)
	}
	defer inputFile.Close()

	outputFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("could not open dest file: %w", err)
	}
	if _, err := io.Copy(outputFile, inputFile); err != nil {
		_ = outputFile.Close()
		return fmt.Errorf("could not copy to dest from source: %w", err)
	}
	if err := outputFile.Close(); err != nil {
		return fmt.Errorf("could not close dest file: %w", err)
	}
	_ = inputFile.Close()

	if err := os.Remove(sourcePath); err != nil {
		return fmt.Errorf("could not remove source file: %w", err)
	}
	return nil
}
