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

// Package generation drives the external video generation providers. Every
// provider is reached through the same Client interface: a request is
// submitted, polled until it reaches a terminal status and the finished video
// is downloaded to local disk. Failures never cross the Client boundary as
// errors; they are folded into the returned model.GenerationResult.
//
// Structs:
//   - Route: the (provider, model) tag used to pick a Client.
//   - Registry: maps routes to clients so callers never branch on providers.
//   - PollingClient: the submit/poll/download state machine shared by all providers.
//   - KieAdapter, DefAPIAdapter: provider specific request and response shapes.
package generation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// Client generates one clip. SubmitAndAwait always returns a result value.
type Client interface {
	SubmitAndAwait(ctx context.Context, req model.GenerationRequest) model.GenerationResult
}

// Route tags a Client with the provider and model it serves.
type Route struct {
	Provider model.Provider  `json:"provider"`
	Model    model.ModelName `json:"model"`
}

func (r Route) String() string {
	return fmt.Sprintf("%s/%s", r.Provider, r.Model)
}

// costTable holds the estimated USD price of one clip per route.
var costTable = map[Route]float64{
	{model.ProviderKieAI, model.ModelVeo31Fast}:    0.40,
	{model.ProviderKieAI, model.ModelVeo31Quality}: 2.00,
	{model.ProviderKieAI, model.ModelSora2}:        0.15,
	{model.ProviderKieAI, model.ModelSora2Pro}:     0.50,
	{model.ProviderDefAPI, model.ModelDefAPIVeo31}: 0.10,
	{model.ProviderDefAPI, model.ModelDefAPISora2}: 0.10,
}

// CostFor returns the estimated price of one successful clip, 0 when unknown.
func CostFor(provider model.Provider, m model.ModelName) float64 {
	return costTable[Route{Provider: provider, Model: m}]
}

// Registry selects the Client for a (provider, model) pair.
type Registry struct {
	clients map[Route]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[Route]Client)}
}

// Register binds client to every model of provider listed in models.
func (r *Registry) Register(provider model.Provider, client Client, models ...model.ModelName) *Registry {
	for _, m := range models {
		r.clients[Route{Provider: provider, Model: m}] = client
	}
	return r
}

// ClientFor returns the client serving the route or ErrUnknownRoute.
func (r *Registry) ClientFor(provider model.Provider, m model.ModelName) (Client, error) {
	c, ok := r.clients[Route{Provider: provider, Model: m}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownRoute, provider, m)
	}
	return c, nil
}

// Supports reports whether a client is registered for the route.
func (r *Registry) Supports(provider model.Provider, m model.ModelName) bool {
	_, ok := r.clients[Route{Provider: provider, Model: m}]
	return ok
}

// Routes lists the registered routes in a stable order.
func (r *Registry) Routes() []Route {
	out := make([]Route, 0, len(r.clients))
	for route := range r.clients {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// NewProviderRegistry wires the kie.ai and defapi.org clients from the
// provider sections of the configuration. Videos are downloaded below outputDir.
func NewProviderRegistry(config *cloud.Config, keys cloud.KeyResolver, outputDir string) *Registry {
	registry := NewRegistry()

	kie := config.Providers[cloud.ProviderKeyKieAI]
	registry.Register(model.ProviderKieAI,
		NewPollingClient(NewKieAdapter(kie.BaseURL, nil), keys, optionsFrom(kie, outputDir)),
		model.ModelVeo31Fast, model.ModelVeo31Quality, model.ModelSora2, model.ModelSora2Pro)

	defapi := config.Providers[cloud.ProviderKeyDefAPI]
	registry.Register(model.ProviderDefAPI,
		NewPollingClient(NewDefAPIAdapter(defapi.BaseURL, nil), keys, optionsFrom(defapi, outputDir)),
		model.ModelDefAPIVeo31, model.ModelDefAPISora2)

	return registry
}

func optionsFrom(p cloud.ProviderConfig, outputDir string) Options {
	return Options{
		PollInterval:     time.Duration(p.PollIntervalSeconds) * time.Second,
		MaxPollAttempts:  p.MaxPollAttempts,
		SlowPollAttempts: p.SlowPollAttempts,
		RateLimit:        p.RateLimit,
		HTTPTimeout:      time.Duration(p.HTTPTimeoutSeconds) * time.Second,
		OutputDir:        outputDir,
	}
}
