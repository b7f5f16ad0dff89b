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

package cloud

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients holds the Google Cloud clients the server was configured
// for. Every field is optional: a purely local configuration leaves them nil.
type ServiceClients struct {
	StorageClient   *storage.Client                   // Set when storage.mode is "gcs".
	PubsubClient    *pubsub.Client                    // Set when application.dispatch_mode is "pubsub".
	GenAIClient     *genai.Client                     // Gemini API or Vertex AI, whichever is configured.
	BiqQueryClient  *bigquery.Client                  // Set when the run ledger is enabled.
	IAMClient       *credentials.IamCredentialsClient // Signs GCS URLs.
	PubSubListeners map[string]*PubSubListener        // Keyed by the logical name from the config.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close releases every client that was created.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients creates the clients required by config. The Gemini
// key is resolved through keys so a key saved over HTTP wins over the file.
func NewCloudServiceClients(ctx context.Context, config *Config, keys KeyResolver) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()

	projectID := config.Application.GoogleProjectId
	if config.Storage.Mode == StorageGCS {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			return cloud, err
		}
		if config.Application.SignerServiceAccountEmail != "" {
			if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
				return cloud, err
			}
		}
	}

	if config.Application.DispatchMode == DispatchPubSub {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, projectID); err != nil {
			return cloud, err
		}
		// Commands are attached once the workflows are built.
		for subKey, values := range config.TopicSubscriptions {
			listener, lErr := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
			if lErr != nil {
				return cloud, lErr
			}
			var requeue, deadLetter Publisher
			if topicID, ok := config.Topics[subKey]; ok {
				requeue = &TopicPublisher{Topic: cloud.PubsubClient.Topic(topicID)}
			}
			if values.DeadLetterTopic != "" {
				deadLetter = &TopicPublisher{Topic: cloud.PubsubClient.Topic(values.DeadLetterTopic)}
			}
			listener.SetPublishers(requeue, deadLetter)
			cloud.PubSubListeners[subKey] = listener
		}
	}

	if config.BigQueryDataSource.Enabled {
		if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, projectID); err != nil {
			return cloud, err
		}
	}

	if cloud.GenAIClient, err = newGenAIClient(ctx, config, keys); err != nil {
		return cloud, err
	}
	if cloud.GenAIClient == nil {
		slog.InfoContext(ctx, "no gemini credentials, prompts fall back to templates")
		return cloud, nil
	}

	for amKey, values := range config.AgentModels {
		generation := &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](values.Temperature),
			TopP:             genai.Ptr[float32](values.TopP),
			TopK:             genai.Ptr[float32](values.TopK),
			MaxOutputTokens:  values.MaxTokens,
			SafetySettings:   DefaultSafetySettings,
			ResponseMIMEType: values.OutputFormat,
		}
		if values.SystemInstructions != "" {
			generation.SystemInstruction = genai.NewContentFromText(values.SystemInstructions, genai.RoleUser)
		}
		agent := NewQuotaAwareModel(generation, values.Model, cloud.GenAIClient.Models, values.RateLimit)
		agent.MaxInlineBytes = int64(values.MaxInlineVideoMB) << 20
		cloud.AgentModels[amKey] = agent
		slog.DebugContext(ctx, "agent model configured", "name", amKey, "model", values.Model)
	}
	return cloud, nil
}

// newGenAIClient prefers an API key (Gemini API) and falls back to Vertex AI
// when a project is configured. It returns nil when neither is available.
func newGenAIClient(ctx context.Context, config *Config, keys KeyResolver) (*genai.Client, error) {
	if keys != nil {
		key, err := keys.Resolve(ctx, KeyGemini)
		switch {
		case err == nil:
			return genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
		case !errors.Is(err, ErrKeyNotConfigured):
			return nil, err
		}
	}
	if config.Application.GoogleProjectId == "" {
		return nil, nil
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
}
