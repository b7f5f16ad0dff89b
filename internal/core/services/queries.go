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

// This file, `queries.go`, holds the BigQuery SQL used by the run ledger.
// Table names are injected with fmt.Sprintf; values are always passed as
// named query parameters.
package services

const (
	// QryRunsBySession lists the recorded runs of one session, newest first.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the runs table.
	// Parameters:
	// - `@session_id`: The session to look up.
	QryRunsBySession = "SELECT session_id, status, attempt, provider, model, num_variants, variants_completed, clips_total, clips_failed, total_cost, original_duration, error, finished_at FROM `%s` WHERE session_id = @session_id ORDER BY finished_at DESC"

	// QryCostByModel sums the estimated spend per provider and model since a point in time.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the runs table.
	// Parameters:
	// - `@since`: Lower bound of finished_at.
	QryCostByModel = "SELECT provider, model, COUNT(*) AS runs, SUM(total_cost) AS total_cost FROM `%s` WHERE finished_at >= @since GROUP BY provider, model ORDER BY total_cost DESC"
)
