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

// Package test holds fixtures shared by the package tests: the test
// configuration, a migrated SQLite store and sample messages.
package test

import (
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
	"github.com/jaycherian/gcp-go-video-clone/internal/db"
)

type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("Error reading config file: %v", err)
	}
}

// GetTestPipelineTaskText is a pipeline task as published on the pipeline topic.
func GetTestPipelineTaskText() string {
	return `{
  "session_id": "s1",
  "source_url": "https://www.tiktok.com/@shop/video/7301234567890123456",
  "product_name": "Lumen Desk Lamp",
  "num_variants": 1,
  "provider": "kie.ai",
  "model": "veo-3.1-fast",
  "strategy": "segments",
  "attempt": 1
}`
}

func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	// Selects .env.test.toml as the overlay.
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig loads the test configuration once and caches it.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// NewSQLiteStore opens a migrated database in a temp dir, closed at cleanup.
func NewSQLiteStore(t *testing.T) *services.SQLiteStore {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return services.NewSQLiteStore(database.Conn())
}

// WritePNG writes a small valid PNG to path.
func WritePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
}
