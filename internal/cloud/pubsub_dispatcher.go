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
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// Publisher sends one message and returns the server assigned id.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// TopicPublisher adapts a *pubsub.Topic to Publisher.
type TopicPublisher struct {
	Topic *pubsub.Topic
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	return p.Topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes}).Get(ctx)
}

// PubSubDispatcher queues pipeline tasks on a topic. The subscription's
// PubSubListener runs them and requeues failed attempts.
type PubSubDispatcher struct {
	Publisher Publisher
}

func NewPubSubDispatcher(client *pubsub.Client, topicID string) *PubSubDispatcher {
	return &PubSubDispatcher{Publisher: &TopicPublisher{Topic: client.Topic(topicID)}}
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, task *model.PipelineTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding pipeline task: %w", err)
	}
	id, err := d.Publisher.Publish(ctx, data, map[string]string{
		"session_id":     task.SessionID,
		AttemptAttribute: strconv.Itoa(max(task.Attempt, 1)),
	})
	if err != nil {
		return fmt.Errorf("publishing pipeline task: %w", err)
	}
	slog.InfoContext(ctx, "pipeline task published", "session_id", task.SessionID, "message_id", id)
	return nil
}
