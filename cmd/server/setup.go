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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/api"
	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/generation"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/media"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/prompts"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/workflow"
	"github.com/jaycherian/gcp-go-video-clone/internal/db"
)

const version = "1.0.0"

// StateManager holds everything built at boot that main needs to serve and
// to shut down.
type StateManager struct {
	config     *cloud.Config
	cloud      *cloud.ServiceClients
	db         *db.DB
	store      *services.SQLiteStore
	handlers   *api.Handlers
	workflow   *workflow.ClonePipelineWorkflow
	dispatcher *workflow.LocalDispatcher // nil in pubsub mode
	janitor    *workflow.SessionJanitor
}

var state = &StateManager{}

// SetupOS points the configuration loader at ./configs and the local overlay
// unless the environment already says otherwise.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			return nil, fmt.Errorf("failed to setup environment: %w", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

func InitState(ctx context.Context) error {
	config, err := GetConfig()
	if err != nil {
		return err
	}

	for _, dir := range []string{config.Storage.LocalPath, config.Storage.TempPath, filepath.Dir(config.Database.Path)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	database, err := db.New(config.Database.Path, slog.Default())
	if err != nil {
		return err
	}
	state.db = database
	state.store = services.NewSQLiteStore(database.Conn())

	// db.New already failed the running jobs. Queued local tasks are lost
	// with the process too, while Pub/Sub keeps them for redelivery.
	if config.Application.DispatchMode != cloud.DispatchPubSub {
		if n, err := database.MarkInterruptedJobs(ctx, string(model.JobPending)); err != nil {
			return fmt.Errorf("recovering queued jobs: %w", err)
		} else if n > 0 {
			slog.WarnContext(ctx, "marked queued jobs as failed", "count", n)
		}
	}

	keys := cloud.NewLayeredResolver(state.store, config)
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config, keys)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	artifacts, videos := newArtifactStorage(config, cloudClients)
	var ledger services.RunLedger
	var history api.RunHistory
	if cloudClients.BiqQueryClient != nil {
		bq := &services.BigQueryRunLedger{
			BigqueryClient: cloudClients.BiqQueryClient,
			DatasetName:    config.BigQueryDataSource.DatasetName,
			RunTable:       config.BigQueryDataSource.RunTable,
		}
		ledger, history = bq, bq
	}

	promptGenerator, err := newPromptGenerator(config, cloudClients)
	if err != nil {
		return err
	}

	tools := config.Tools
	ffmpegRunner := media.NewRunner(time.Duration(tools.FFmpegTimeoutSeconds) * time.Second)
	downloadRunner := media.NewRunner(time.Duration(tools.DownloadTimeoutSecond) * time.Second)
	prober := media.NewProber(ffmpegRunner, tools.FFprobe)
	registry := generation.NewProviderRegistry(config, keys, config.Storage.TempPath)

	state.workflow = workflow.NewClonePipelineWorkflow(workflow.Dependencies{
		Jobs:        state.store,
		Source:      media.NewYtDlpSource(downloadRunner, tools.YtDlp, prober),
		Detector:    media.NewFFmpegSceneDetector(ffmpegRunner, tools.FFmpeg, tools.SceneThreshold),
		Prompts:     promptGenerator,
		Registry:    registry,
		Storage:     artifacts,
		Chainer:     media.NewFFmpegFrameChainer(ffmpegRunner, tools.FFmpeg),
		WorkDir:     config.Storage.TempPath,
		Parallelism: config.Application.ThreadPoolSize,
		Ledger:      ledger,
	})

	dispatcher, err := newDispatcher(ctx, config, cloudClients)
	if err != nil {
		return err
	}

	pipeline := &services.PipelineService{Jobs: state.store, Dispatcher: dispatcher, Routes: registry}
	sessions := &services.SessionService{
		Sessions: state.store,
		Jobs:     state.store,
		Storage:  artifacts,
		Pipeline: pipeline,
		ImageDir: filepath.Join(config.Storage.LocalPath, "images"),
		WorkDir:  config.Storage.TempPath,
		Defaults: services.SessionDefaults{
			Provider: model.Provider(config.Defaults.Provider),
			Model:    model.ModelName(config.Defaults.Model),
			Strategy: model.Strategy(config.Defaults.Strategy),
		},
	}

	state.janitor = &workflow.SessionJanitor{
		Sessions: state.store,
		Jobs:     state.store,
		Purger:   sessions,
		MaxAge:   time.Duration(config.Application.SessionMaxAgeHours) * time.Hour,
		Interval: time.Duration(config.Application.JanitorIntervalMinutes) * time.Minute,
	}

	state.handlers = &api.Handlers{
		Sessions: sessions,
		Pipeline: pipeline,
		Settings: state.store,
		Videos:   videos,
		History:  history,
		Routes:   registry,
		Info: api.Info{
			Version:         version,
			StorageMode:     config.Storage.Mode,
			DispatchMode:    config.Application.DispatchMode,
			DefaultProvider: config.Defaults.Provider,
			DefaultModel:    config.Defaults.Model,
		},
		MaxImageBytes: media.MaxImageBytes,
	}
	return nil
}

// newArtifactStorage returns the storage used by the pipeline and, in local
// mode, the same store for the /videos route.
func newArtifactStorage(config *cloud.Config, clients *cloud.ServiceClients) (interface {
	commands.Storage
	services.ArtifactStorage
}, *services.LocalStorage) {
	if config.Storage.Mode == cloud.StorageGCS {
		return &services.GCSStorage{
			StorageClient: clients.StorageClient,
			IAMClient:     clients.IAMClient,
			Bucket:        config.Storage.Bucket,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
			Expires:       time.Duration(config.Storage.SignedURLMinutes) * time.Minute,
		}, nil
	}
	local := services.NewLocalStorage(config.Storage.LocalPath, config.Storage.PublicURLPrefix)
	return local, local
}

func newPromptGenerator(config *cloud.Config, clients *cloud.ServiceClients) (prompts.Generator, error) {
	agent, ok := clients.AgentModels[cloud.PromptWriterModel]
	if !ok {
		return &prompts.TemplatePromptGenerator{}, nil
	}
	return prompts.NewGeminiPromptGenerator(agent, config.PromptTemplates, agent.MaxInlineBytes)
}

func newDispatcher(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (services.Dispatcher, error) {
	if config.Application.DispatchMode == cloud.DispatchPubSub {
		topic, ok := config.Topics[cloud.PipelineTopic]
		if !ok || clients.PubsubClient == nil {
			return nil, fmt.Errorf("pubsub dispatch needs topics.%s", cloud.PipelineTopic)
		}
		return cloud.NewPubSubDispatcher(clients.PubsubClient, topic), nil
	}
	state.dispatcher = workflow.NewLocalDispatcher(
		state.workflow,
		state.store,
		config.Application.WorkerCount,
		config.Application.WorkerCount*8,
		config.Application.MaxPipelineAttempts,
		time.Duration(config.Application.RetryBackoffSeconds)*time.Second,
	)
	state.dispatcher.Start(ctx)
	return state.dispatcher, nil
}
