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

// Package services contains the stores and service objects behind the HTTP
// API and the pipeline: job state, sessions, runtime settings, artifact
// storage and run history.
//
// This file, `stores.go`, defines the store contracts and their in-memory
// implementations, used by tests and by the ephemeral runtime.
package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// Sentinel errors of the stores.
var (
	ErrJobNotFound     = model.ErrJobNotFound
	ErrJobExists       = errors.New("job already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// JobStore persists JobState snapshots. Implementations store and return deep
// copies, so a caller never shares memory with the store.
type JobStore interface {
	// Create inserts a new record, replacing a terminal one from a previous run.
	Create(ctx context.Context, state *model.JobState) error
	Save(ctx context.Context, state *model.JobState) error
	Get(ctx context.Context, sessionID string) (*model.JobState, error)
	Delete(ctx context.Context, sessionID string) error
	// ListOlderThan returns the session ids whose last update is before t.
	ListOlderThan(ctx context.Context, t time.Time) ([]string, error)
}

// SessionStore persists the user facing session records.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	UpdateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListSessions(ctx context.Context) ([]*model.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessionsOlderThan(ctx context.Context, t time.Time) ([]string, error)
}

// SettingsStore is the dynamic key/value layer read before static configuration.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSettings(ctx context.Context, values map[string]string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// MemoryJobStore is a JobStore backed by a map.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.JobState
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.JobState)}
}

func (m *MemoryJobStore) Create(_ context.Context, state *model.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.jobs[state.SessionID]; ok && !existing.Status.IsTerminal() {
		return ErrJobExists
	}
	m.jobs[state.SessionID] = state.Clone()
	return nil
}

func (m *MemoryJobStore) Save(_ context.Context, state *model.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[state.SessionID] = state.Clone()
	return nil
}

func (m *MemoryJobStore) Get(_ context.Context, sessionID string) (*model.JobState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.jobs[sessionID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return state.Clone(), nil
}

func (m *MemoryJobStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, sessionID)
	return nil
}

func (m *MemoryJobStore) ListOlderThan(_ context.Context, t time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0)
	for id, state := range m.jobs {
		if state.UpdatedAt.Before(t) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemorySessionStore is a SessionStore backed by a map.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]model.Session)}
}

func (m *MemorySessionStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = *s
	return nil
}

func (m *MemorySessionStore) UpdateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.SessionID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[s.SessionID] = *s
	return nil
}

func (m *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

// ListSessions returns the newest sessions first.
func (m *MemorySessionStore) ListSessions(_ context.Context) ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemorySessionStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemorySessionStore) ListSessionsOlderThan(_ context.Context, t time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0)
	for id, s := range m.sessions {
		if s.CreatedAt.Before(t) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemorySettingsStore is a SettingsStore backed by a map.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{values: make(map[string]string)}
}

func (m *MemorySettingsStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemorySettingsStore) SetSettings(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemorySettingsStore) AllSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}
