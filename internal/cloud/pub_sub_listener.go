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

// Package cloud provides components for interacting with Google Cloud services.
// This file defines the Pub/Sub listener that feeds pipeline tasks into a
// command. A message is acknowledged when the command succeeds. A failed
// message is retried until its attempt reaches the retry budget, then it is
// forwarded to the dead-letter topic (when one is configured) and acknowledged.
//
// Pub/Sub only counts deliveries on subscriptions with a dead-letter policy.
// Without one the listener counts attempts itself: the attempt travels in the
// "attempt" message attribute and a failed message is republished with the
// next attempt before the original is acknowledged.
package cloud

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AttemptAttribute carries the pipeline attempt of a republished message.
const AttemptAttribute = "attempt"

// PubSubListener pulls messages from one subscription and runs a command for each.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
	maxAttempts  int
	backoff      time.Duration
	permanent    func(error) bool
	requeue      Publisher
	deadLetter   Publisher
}

func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	cmd = &PubSubListener{
		client:      pubsubClient,
		command:     command,
		maxAttempts: 1,
	}
	if pubsubClient != nil {
		cmd.subscription = pubsubClient.Subscription(subscriptionID)
	}
	return cmd, nil
}

// SetCommand attaches the command once; later calls are ignored.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// SetPublishers sets where failed messages go: requeue receives the next
// attempt, deadLetter the messages that will not be retried. Either may be nil.
func (m *PubSubListener) SetPublishers(requeue, deadLetter Publisher) {
	m.requeue = requeue
	m.deadLetter = deadLetter
}

// SetRetryPolicy sets the wait before a failed message is requeued and the
// test for errors that no retry can fix.
func (m *PubSubListener) SetRetryPolicy(backoff time.Duration, permanent func(error) bool) {
	m.backoff = backoff
	m.permanent = permanent
}

// Configure bounds concurrent messages, the lease extension for long runs and
// the delivery budget.
func (m *PubSubListener) Configure(maxOutstanding int, maxExtension time.Duration, maxAttempts int) {
	if maxAttempts > 0 {
		m.maxAttempts = maxAttempts
	}
	if m.subscription == nil {
		return
	}
	if maxOutstanding > 0 {
		m.subscription.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
		m.subscription.ReceiveSettings.NumGoroutines = 1
	}
	if maxExtension > 0 {
		m.subscription.ReceiveSettings.MaxExtension = maxExtension
	}
}

// Listen starts receiving in a goroutine. It returns immediately.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.InfoContext(ctx, "listening", "subscription", m.subscription.String())
	go func() {
		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			if m.Handle(msgCtx, msg) {
				msg.Ack()
			} else {
				msg.Nack()
			}
		})
		if err != nil {
			slog.ErrorContext(ctx, "error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}

// messageAttempt prefers the broker's delivery count and falls back to the
// attempt attribute written on requeue.
func messageAttempt(msg *pubsub.Message) int {
	if msg.DeliveryAttempt != nil && *msg.DeliveryAttempt > 0 {
		return *msg.DeliveryAttempt
	}
	if n, err := strconv.Atoi(msg.Attributes[AttemptAttribute]); err == nil && n > 0 {
		return n
	}
	return 1
}

// Handle runs the command for one message and reports whether the message
// should be acknowledged.
func (m *PubSubListener) Handle(ctx context.Context, msg *pubsub.Message) bool {
	attempt := messageAttempt(msg)
	tracer := otel.Tracer("message-listener")
	spanCtx, span := tracer.Start(ctx, "receive-message")
	defer span.End()
	span.SetAttributes(attribute.Int("delivery_attempt", attempt))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(spanCtx)
	chainCtx.Add(cor.CtxIn, string(msg.Data))
	chainCtx.Add(cor.CtxAttempt, attempt)
	m.command.Execute(chainCtx)

	if !chainCtx.HasErrors() {
		span.SetStatus(codes.Ok, "success")
		return true
	}
	span.SetStatus(codes.Error, "failed")
	err := chainCtx.Err()
	span.RecordError(err)

	switch {
	case m.permanent != nil && m.permanent(err):
		slog.ErrorContext(spanCtx, "dropping message, the error is not retryable", "attempt", attempt, "error", err)
		return m.park(spanCtx, msg, attempt)
	case attempt >= m.maxAttempts:
		slog.ErrorContext(spanCtx, "dropping message after final attempt", "attempt", attempt, "error", err)
		return m.park(spanCtx, msg, attempt)
	case msg.DeliveryAttempt != nil:
		slog.WarnContext(spanCtx, "message will be redelivered", "attempt", attempt, "max_attempts", m.maxAttempts, "error", err)
		return false
	case m.requeue == nil:
		// Nothing would count the redeliveries.
		slog.ErrorContext(spanCtx, "dropping message, no retry topic configured", "attempt", attempt, "error", err)
		return m.park(spanCtx, msg, attempt)
	}

	if m.backoff > 0 {
		select {
		case <-spanCtx.Done():
			return false
		case <-time.After(m.backoff):
		}
	}
	attrs := maps.Clone(msg.Attributes)
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs[AttemptAttribute] = strconv.Itoa(attempt + 1)
	if _, pubErr := m.requeue.Publish(spanCtx, msg.Data, attrs); pubErr != nil {
		slog.ErrorContext(spanCtx, "could not requeue message, leaving it for redelivery", "attempt", attempt, "error", pubErr)
		return false
	}
	slog.WarnContext(spanCtx, "message requeued", "attempt", attempt+1, "max_attempts", m.maxAttempts, "error", err)
	return true
}

// park forwards a message that will not be retried to the dead-letter topic
// and reports that it is to be acknowledged either way; a redelivery would
// only run the pipeline again.
func (m *PubSubListener) park(ctx context.Context, msg *pubsub.Message, attempt int) bool {
	if m.deadLetter == nil {
		return true
	}
	attrs := maps.Clone(msg.Attributes)
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs[AttemptAttribute] = strconv.Itoa(attempt)
	if _, err := m.deadLetter.Publish(ctx, msg.Data, attrs); err != nil {
		slog.ErrorContext(ctx, "could not forward message to the dead-letter topic", "error", err)
	}
	return true
}
