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

// Package cloud defines the application configuration, loaded from TOML
// files, and the clients used to reach external services.
//
// Structs:
//   - Application: server wide settings (project, worker pool, retry budget).
//   - Storage: where generated clips and temporary files live.
//   - Tools: paths of the external binaries (ffmpeg, ffprobe, yt-dlp).
//   - ProviderConfig: endpoint, key and pacing settings of a generation provider.
//   - VertexAiLLMModel: settings of the language model writing clip prompts.
//   - Config: the root of the TOML document.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings do not block any category; prompts only describe
// product commercials.
var DefaultSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
}

// Dispatch modes.
const (
	DispatchLocal  = "local"
	DispatchPubSub = "pubsub"
)

// Storage modes.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Provider keys of Config.Providers.
const (
	ProviderKeyKieAI  = "kie"
	ProviderKeyDefAPI = "defapi"
)

// Application holds general settings.
type Application struct {
	Name                      string `toml:"name"`
	GoogleProjectId           string `toml:"google_project_id"`
	GoogleLocation            string `toml:"location"`
	ListenAddress             string `toml:"listen_address"`
	ThreadPoolSize            int    `toml:"thread_pool_size"` // Variants generated concurrently per run.
	WorkerCount               int    `toml:"worker_count"`     // Pipeline runs processed concurrently by the local dispatcher.
	SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	DispatchMode              string `toml:"dispatch_mode"`
	MaxPipelineAttempts       int    `toml:"max_pipeline_attempts"`
	RetryBackoffSeconds       int    `toml:"retry_backoff_seconds"`
	SessionMaxAgeHours        int    `toml:"session_max_age_hours"`
	JanitorIntervalMinutes    int    `toml:"janitor_interval_minutes"`
}

// RetryBackoff is the wait between two whole-pipeline attempts.
func (a Application) RetryBackoff() time.Duration {
	return time.Duration(a.RetryBackoffSeconds) * time.Second
}

// Storage configures artifact and scratch space.
type Storage struct {
	Mode             string `toml:"mode"`
	LocalPath        string `toml:"local_path"`
	TempPath         string `toml:"temp_path"`
	PublicURLPrefix  string `toml:"public_url_prefix"`
	Bucket           string `toml:"bucket"`
	SignedURLMinutes int    `toml:"signed_url_minutes"`
}

// Database configures the SQLite file that holds job state.
type Database struct {
	Path string `toml:"path"`
}

// Tools lists external binaries and their knobs.
type Tools struct {
	FFmpeg                string  `toml:"ffmpeg"`
	FFprobe               string  `toml:"ffprobe"`
	YtDlp                 string  `toml:"yt_dlp"`
	SceneThreshold        float64 `toml:"scene_threshold"`
	DownloadTimeoutSecond int     `toml:"download_timeout_seconds"`
	FFmpegTimeoutSeconds  int     `toml:"ffmpeg_timeout_seconds"`
}

// Defaults applied to session requests that omit a value.
type Defaults struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Strategy string `toml:"strategy"`
}

// ProviderConfig configures one video generation provider.
type ProviderConfig struct {
	BaseURL             string  `toml:"base_url"`
	APIKey              string  `toml:"api_key"`
	RateLimit           float64 `toml:"rate_limit"` // Submissions per second.
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	MaxPollAttempts     int     `toml:"max_poll_attempts"`
	SlowPollAttempts    int     `toml:"slow_poll_attempts"`
	HTTPTimeoutSeconds  int     `toml:"http_timeout_seconds"`
}

// PromptTemplates holds the text/template sources sent to the prompt writer.
type PromptTemplates struct {
	ClipPrompt string `toml:"clip_prompt"`
	SoraStyle  string `toml:"sora_style"`
	VeoStyle   string `toml:"veo_style"`
}

// VertexAiLLMModel configures a Gemini model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"`
	MaxInlineVideoMB   int     `toml:"max_inline_video_mb"`
}

// TopicSubscription is a Pub/Sub subscription this server listens to.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// BigQueryDataSource is where finished runs are recorded.
type BigQueryDataSource struct {
	Enabled     bool   `toml:"enabled"`
	DatasetName string `toml:"dataset"`
	RunTable    string `toml:"run_table"`
}

// Config is the root of the TOML configuration.
type Config struct {
	Application        Application                  `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	Database           Database                     `toml:"database"`
	Tools              Tools                        `toml:"tools"`
	Defaults           Defaults                     `toml:"defaults"`
	Providers          map[string]ProviderConfig    `toml:"providers"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	Topics             map[string]string            `toml:"topics"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	GeminiAPIKey       string                       `toml:"gemini_api_key"`
}

// Logical names used as map keys in the configuration.
const (
	PromptWriterModel   = "prompt-writer"
	PipelineTopic       = "PipelineTopic"
	PipelineTopicPrefix = "pipeline"
)

// NewConfig returns a configuration with local defaults, so a missing TOML
// file still yields a runnable server.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:                   "video-clone-server",
			GoogleLocation:         "us-central1",
			ListenAddress:          ":8080",
			ThreadPoolSize:         1,
			WorkerCount:            2,
			DispatchMode:           DispatchLocal,
			MaxPipelineAttempts:    3,
			RetryBackoffSeconds:    60,
			SessionMaxAgeHours:     24,
			JanitorIntervalMinutes: 30,
		},
		Storage: Storage{
			Mode:             StorageLocal,
			LocalPath:        "storage",
			TempPath:         "tmp",
			PublicURLPrefix:  "/api/v1/videos",
			SignedURLMinutes: 60,
		},
		Database: Database{Path: "data/clone.db"},
		Tools: Tools{
			FFmpeg:                "ffmpeg",
			FFprobe:               "ffprobe",
			YtDlp:                 "yt-dlp",
			SceneThreshold:        0.3,
			DownloadTimeoutSecond: 300,
			FFmpegTimeoutSeconds:  120,
		},
		Defaults: Defaults{Provider: "kie.ai", Model: "veo-3.1-fast", Strategy: "segments"},
		Providers: map[string]ProviderConfig{
			ProviderKeyKieAI: {
				BaseURL:             "https://api.kie.ai",
				RateLimit:           1,
				PollIntervalSeconds: 5,
				MaxPollAttempts:     60,
				SlowPollAttempts:    120,
				HTTPTimeoutSeconds:  60,
			},
			ProviderKeyDefAPI: {
				BaseURL:             "https://api.defapi.org",
				RateLimit:           1,
				PollIntervalSeconds: 5,
				MaxPollAttempts:     60,
				SlowPollAttempts:    120,
				HTTPTimeoutSeconds:  60,
			},
		},
		AgentModels: map[string]VertexAiLLMModel{
			PromptWriterModel: {
				Model:            "gemini-2.5-flash",
				Temperature:      0.7,
				TopP:             0.95,
				TopK:             40,
				MaxTokens:        8192,
				OutputFormat:     "application/json",
				RateLimit:        2,
				MaxInlineVideoMB: 18,
			},
		},
		TopicSubscriptions: make(map[string]TopicSubscription),
		Topics:             make(map[string]string),
	}
}
