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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/db"
)

// SQLiteStore implements JobStore, SessionStore and SettingsStore on the
// database opened by package db. Job snapshots are stored as JSON next to
// the indexed status and timestamp columns.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(db.TimeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// Create inserts a job, replacing a terminal record left by a previous run.
func (s *SQLiteStore) Create(ctx context.Context, state *model.JobState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE session_id = ?`, state.SessionID).Scan(&status)
	switch {
	case err == nil && !model.JobStatus(status).IsTerminal():
		return ErrJobExists
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs (session_id, status, progress, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, state.SessionID, string(state.Status), state.Progress, string(raw), formatTime(state.UpdatedAt)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Save(ctx context.Context, state *model.JobState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (session_id, status, progress, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, state.SessionID, string(state.Status), state.Progress, string(raw), formatTime(state.UpdatedAt))
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*model.JobState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM jobs WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	state := &model.JobState{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", sessionID, err)
	}
	return state, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) ListOlderThan(ctx context.Context, t time.Time) ([]string, error) {
	return s.ids(ctx, `SELECT session_id FROM jobs WHERE updated_at < ? ORDER BY session_id`, formatTime(t))
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, source_url, product_name, product_image_path, num_variants, provider, model, strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.SessionID, session.SourceURL, session.ProductName, session.ProductImagePath, session.NumVariants,
		string(session.Provider), string(session.Model), string(session.Strategy),
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
	return err
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session *model.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET source_url = ?, product_name = ?, product_image_path = ?, num_variants = ?,
			provider = ?, model = ?, strategy = ?, updated_at = ?
		WHERE session_id = ?
	`, session.SourceURL, session.ProductName, session.ProductImagePath, session.NumVariants,
		string(session.Provider), string(session.Model), string(session.Strategy), formatTime(session.UpdatedAt),
		session.SessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

const sessionColumns = `session_id, source_url, product_name, product_image_path, num_variants, provider, model, strategy, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var out model.Session
	var provider, m, strategy, createdAt, updatedAt string
	if err := row.Scan(&out.SessionID, &out.SourceURL, &out.ProductName, &out.ProductImagePath, &out.NumVariants,
		&provider, &m, &strategy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	out.Provider = model.Provider(provider)
	out.Model = model.ModelName(m)
	out.Strategy = model.Strategy(strategy)
	out.CreatedAt = parseTime(createdAt)
	out.UpdatedAt = parseTime(updatedAt)
	return &out, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*model.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) ListSessionsOlderThan(ctx context.Context, t time.Time) ([]string, error) {
	return s.ids(ctx, `SELECT session_id FROM sessions WHERE created_at < ? ORDER BY session_id`, formatTime(t))
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSettings(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, k, v, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var (
	_ JobStore      = (*SQLiteStore)(nil)
	_ SessionStore  = (*SQLiteStore)(nil)
	_ SettingsStore = (*SQLiteStore)(nil)
	_ JobStore      = (*MemoryJobStore)(nil)
	_ SessionStore  = (*MemorySessionStore)(nil)
	_ SettingsStore = (*MemorySettingsStore)(nil)
)
