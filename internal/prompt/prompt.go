/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prompt renders the rewrite prompts sent to the generative model.
// Everything here is a pure function of its inputs.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/metadata"
)

const (
	// planTextCap bounds the plan text embedded in a prompt.
	planTextCap = 12000
	// metadataJSONCap bounds the serialized metadata embedded in a prompt.
	metadataJSONCap = 12000
	// maxColumnsPerTable bounds per-table column lists in the projection.
	maxColumnsPerTable = 200
)

// SystemPrompt fixes the model's role and the structured output contract.
const SystemPrompt = `You are a SQL optimization assistant for distributed query engines.
You must preserve query semantics.
You may only return a single JSON object with keys:
- optimized_sql (string)
- changes (array of short strings)
- assumptions (array of short strings)
- risk (one of: low, medium, high)

Rules:
- Output valid SQL for the target engine.
- Prefer adding partition predicates when possible (based on provided partition candidates).
- Keep predicates sargable: never wrap partition or filter columns in functions in WHERE.
- Do NOT add new tables.
- Do NOT remove required filters if present.
- Do NOT output markdown or explanations outside JSON.`

// rewriteGuidance enumerates the rewrite heuristics the model should
// consider. Advisory only: none of these are enforced by the pipeline.
const rewriteGuidance = `Guidance:
- If the query filters on timestamps and a table has date-like partition candidates, add a matching partition predicate over the raw partition column.
- Rewrite expressions like date(ts) = DATE '...' or substr(ds,1,10) = '...' into range predicates on the raw column so partition pruning applies.
- Prefer explicit column lists over SELECT * when it does not change semantics.
- Keep ORDER BY paired with LIMIT; avoid ORDER BY without LIMIT on large outputs.
- Keep the smaller input on the left side of a join; keep the small side small with early filters and projections.
- Prefer equality joins on normalized keys; avoid joining on derived expressions or high-entropy composite keys.
- Use approximate aggregates (approx_distinct and friends) where exact answers are not required.
- If the final output aggregates a fact table by dimension attributes, aggregate the fact table first, then join to the dimensions.
- If one join-key value dominates, consider handling the hot key separately or restructuring to avoid a single-task bottleneck.
- If DISTINCT only dedupes entities, dedupe by key with GROUP BY or row_number instead of DISTINCT over wide rows.
- With many OR conditions on one column, prefer IN (...).
- Use CTEs to avoid repeating logic, but do not assume a CTE is materialized once.`

// promptMetadata is the compact projection of table metadata shipped to the
// model.
type promptMetadata struct {
	Table               string                `json:"table"`
	PartitionCandidates []string              `json:"partition_candidates"`
	Columns             []metadata.ColumnInfo `json:"columns"`
	PropertiesHint      map[string]string     `json:"properties_hint,omitempty"`
}

// BuildOptimizerPrompt renders the initial rewrite prompt.
func BuildOptimizerPrompt(originalSQL, planText string, metas []metadata.TableMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimize this SQL query.\n\n")
	fmt.Fprintf(&b, "ORIGINAL_SQL:\n%s\n\n", originalSQL)
	fmt.Fprintf(&b, "EXPLAIN_PLAN_BEFORE:\n%s\n\n", truncate(planText, planTextCap))
	fmt.Fprintf(&b, "TABLE_METADATA_JSON:\n%s\n\n", truncate(metadataCompactJSON(metas), metadataJSONCap))
	b.WriteString(rewriteGuidance)
	b.WriteString("\n\nReturn ONLY JSON as specified.")
	return b.String()
}

// BuildFixPrompt renders the repair prompt for a rejected candidate, seeded
// with the validation failure.
func BuildFixPrompt(originalSQL, candidateSQL, feedback, planText string, metas []metadata.TableMetadata) string {
	var b strings.Builder
	b.WriteString("You produced an optimized SQL but it failed validation or did not improve.\n\n")
	fmt.Fprintf(&b, "ORIGINAL_SQL:\n%s\n\n", originalSQL)
	fmt.Fprintf(&b, "CANDIDATE_SQL:\n%s\n\n", candidateSQL)
	fmt.Fprintf(&b, "VALIDATION_ERROR_OR_FEEDBACK:\n%s\n\n", feedback)
	fmt.Fprintf(&b, "EXPLAIN_PLAN_BEFORE:\n%s\n\n", truncate(planText, planTextCap))
	fmt.Fprintf(&b, "TABLE_METADATA_JSON:\n%s\n\n", truncate(metadataCompactJSON(metas), metadataJSONCap))
	b.WriteString("Task:\n")
	b.WriteString("- Fix the SQL so it is valid for the target engine.\n")
	b.WriteString("- Preserve semantics.\n")
	b.WriteString("- Prefer partition pruning improvements when safe.\n")
	b.WriteString("\nReturn ONLY JSON as specified.")
	return b.String()
}

func metadataCompactJSON(metas []metadata.TableMetadata) string {
	payload := make([]promptMetadata, 0, len(metas))
	for _, tm := range metas {
		cols := tm.Columns
		if len(cols) > maxColumnsPerTable {
			cols = cols[:maxColumnsPerTable]
		}
		payload = append(payload, promptMetadata{
			Table:               tm.Table.FQTN(),
			PartitionCandidates: tm.PartitionCandidates,
			Columns:             cols,
			PropertiesHint:      tm.Properties,
		})
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return "[]"
	}
	return string(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
