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
	"fmt"
)

// Names of the secrets that can be changed at runtime through the settings API.
const (
	KeyKieAI  = "kie_ai_key"
	KeyDefAPI = "defapi_key"
	KeyGemini = "gemini_key"
)

// ErrKeyNotConfigured is returned when no layer holds a value for a key.
var ErrKeyNotConfigured = errors.New("api key not configured")

// KeyResolver resolves a named secret at the moment it is needed, so that a key
// saved through the settings API is picked up by the next generation request.
type KeyResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// SettingsReader is the dynamic layer of a LayeredResolver.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
}

// LayeredResolver checks the dynamic settings store first and falls back to the
// static values loaded from the TOML configuration.
type LayeredResolver struct {
	Dynamic SettingsReader
	Static  map[string]string
}

// NewLayeredResolver builds the static layer from the provider sections of config.
func NewLayeredResolver(dynamic SettingsReader, config *Config) *LayeredResolver {
	static := map[string]string{KeyGemini: config.GeminiAPIKey}
	if p, ok := config.Providers[ProviderKeyKieAI]; ok {
		static[KeyKieAI] = p.APIKey
	}
	if p, ok := config.Providers[ProviderKeyDefAPI]; ok {
		static[KeyDefAPI] = p.APIKey
	}
	return &LayeredResolver{Dynamic: dynamic, Static: static}
}

func (r *LayeredResolver) Resolve(ctx context.Context, key string) (string, error) {
	if r.Dynamic != nil {
		value, ok, err := r.Dynamic.GetSetting(ctx, key)
		if err != nil {
			return "", fmt.Errorf("reading setting %s: %w", key, err)
		}
		if ok && value != "" {
			return value, nil
		}
	}
	if value := r.Static[key]; value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrKeyNotConfigured, key)
}

// StaticKeys is a KeyResolver over a fixed map.
type StaticKeys map[string]string

func (s StaticKeys) Resolve(_ context.Context, key string) (string, error) {
	if value := s[key]; value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrKeyNotConfigured, key)
}
