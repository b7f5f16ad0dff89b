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

// This file, `run_ledger.go`, records one row per finished pipeline run in
// BigQuery, giving an append-only history of spend and outcomes that outlives
// the session janitor.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// RunRecord is one finished run, mapped onto the BigQuery runs table.
type RunRecord struct {
	SessionID         string    `bigquery:"session_id" json:"session_id"`
	Status            string    `bigquery:"status" json:"status"`
	Attempt           int       `bigquery:"attempt" json:"attempt"`
	Provider          string    `bigquery:"provider" json:"provider"`
	Model             string    `bigquery:"model" json:"model"`
	NumVariants       int       `bigquery:"num_variants" json:"num_variants"`
	VariantsCompleted int       `bigquery:"variants_completed" json:"variants_completed"`
	ClipsTotal        int       `bigquery:"clips_total" json:"clips_total"`
	ClipsFailed       int       `bigquery:"clips_failed" json:"clips_failed"`
	TotalCost         float64   `bigquery:"total_cost" json:"total_cost"`
	OriginalDuration  float64   `bigquery:"original_duration" json:"original_duration"`
	Error             string    `bigquery:"error" json:"error,omitempty"`
	FinishedAt        time.Time `bigquery:"finished_at" json:"finished_at"`
}

// NewRunRecord summarizes a terminal job state.
func NewRunRecord(task *model.PipelineTask, state *model.JobState) RunRecord {
	rec := RunRecord{
		SessionID:         state.SessionID,
		Status:            string(state.Status),
		Attempt:           state.Attempt,
		Provider:          string(task.Provider),
		Model:             string(task.Model),
		NumVariants:       task.NumVariants,
		VariantsCompleted: state.VariantsCompleted,
		TotalCost:         state.TotalCost,
		OriginalDuration:  state.OriginalDuration,
		Error:             state.Error,
		FinishedAt:        state.UpdatedAt,
	}
	for _, v := range state.Variants {
		for _, c := range v.Clips {
			rec.ClipsTotal++
			if c.Status != model.ClipCompleted {
				rec.ClipsFailed++
			}
		}
	}
	return rec
}

// RunLedger receives the record of every finished run.
type RunLedger interface {
	Record(ctx context.Context, rec RunRecord) error
}

// BigQueryRunLedger streams run records into a BigQuery table.
type BigQueryRunLedger struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	RunTable       string
}

// GetFQN returns the `project.dataset.table` name of the runs table.
func (l *BigQueryRunLedger) GetFQN() string {
	fqn := l.BigqueryClient.Dataset(l.DatasetName).Table(l.RunTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

func (l *BigQueryRunLedger) Record(ctx context.Context, rec RunRecord) error {
	inserter := l.BigqueryClient.Dataset(l.DatasetName).Table(l.RunTable).Inserter()
	if err := inserter.Put(ctx, &rec); err != nil {
		return fmt.Errorf("bigquery insert failed for session %s: %w", rec.SessionID, err)
	}
	return nil
}

// History returns the recorded runs of a session, newest first.
func (l *BigQueryRunLedger) History(ctx context.Context, sessionID string) ([]RunRecord, error) {
	q := l.BigqueryClient.Query(fmt.Sprintf(QryRunsBySession, l.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "session_id", Value: sessionID}}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0)
	for {
		var rec RunRecord
		err := it.Next(&rec)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ModelSpend is one row of QryCostByModel.
type ModelSpend struct {
	Provider  string  `bigquery:"provider" json:"provider"`
	Model     string  `bigquery:"model" json:"model"`
	Runs      int     `bigquery:"runs" json:"runs"`
	TotalCost float64 `bigquery:"total_cost" json:"total_cost"`
}

// SpendSince aggregates estimated spend per provider and model.
func (l *BigQueryRunLedger) SpendSince(ctx context.Context, since time.Time) ([]ModelSpend, error) {
	q := l.BigqueryClient.Query(fmt.Sprintf(QryCostByModel, l.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "since", Value: since}}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ModelSpend, 0)
	for {
		var row ModelSpend
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
