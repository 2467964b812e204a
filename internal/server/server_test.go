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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/explain"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/metadata"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/optimizer"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/sqlparse"
)

type fakeOptimizer struct {
	lastSQL string
	out     optimizer.Outcome
}

func (f *fakeOptimizer) Optimize(_ context.Context, sqlText string) optimizer.Outcome {
	f.lastSQL = sqlText
	return f.out
}

func TestHealthz(t *testing.T) {
	srv := New(&fakeOptimizer{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestOptimizeEndpoint(t *testing.T) {
	after := explain.Result{OK: true, Text: "TableScan rows: 10"}
	fake := &fakeOptimizer{out: optimizer.Outcome{
		OK:            true,
		OriginalSQL:   "SELECT id FROM events",
		OptimizedSQL:  "SELECT id FROM events WHERE ds = '2025-01-01'",
		ExplainBefore: explain.Result{OK: true, Text: "TableScan rows: 1000"},
		ExplainAfter:  &after,
		Tables:        []string{"hive.analytics.events"},
		Metadata: []metadata.TableMetadata{{
			Table:               sqlparse.TableRef{Catalog: "hive", Schema: "analytics", Table: "events"},
			Columns:             []metadata.ColumnInfo{{Name: "id", Type: "bigint"}, {Name: "ds", Type: "varchar"}},
			PartitionCandidates: []string{"ds"},
		}},
		Attempts: 1,
		Diff:     "--- original.sql\n+++ optimized.sql\n",
		Risk:     "low",
		Changes:  []string{"added partition filter"},
	}}
	srv := New(fake, zap.NewNop())

	body, err := json.Marshal(map[string]string{"sql": "SELECT id FROM events"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SELECT id FROM events", fake.lastSQL)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, float64(1), resp["attempts"])
	assert.Equal(t, []any{"hive.analytics.events"}, resp["tables"])

	llmOut, ok := resp["llm"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "low", llmOut["risk"])

	metaOut, ok := resp["metadata"].([]any)
	require.True(t, ok)
	require.Len(t, metaOut, 1)
	first := metaOut[0].(map[string]any)
	assert.Equal(t, "hive.analytics.events", first["table"])
	assert.Equal(t, []any{"ds"}, first["partition_candidates"])

	before, ok := resp["explain_before"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, before["ok"])
	assert.NotNil(t, resp["explain_after"])
}

func TestOptimizeEndpointFailureKeepsNullExplainAfter(t *testing.T) {
	fake := &fakeOptimizer{out: optimizer.Outcome{
		OriginalSQL:   "SELECT id FROM missing",
		ExplainBefore: explain.Result{Error: "table not found"},
		Error:         "explain failed for original SQL: table not found",
	}}
	srv := New(fake, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/optimize",
		bytes.NewReader([]byte(`{"sql": "SELECT id FROM missing"}`)))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["ok"])
	assert.Nil(t, resp["explain_after"])
	assert.Contains(t, resp["error"], "table not found")
}

func TestOptimizeEndpointRejectsBadInput(t *testing.T) {
	srv := New(&fakeOptimizer{}, zap.NewNop())

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blank sql", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewReader([]byte(`{"sql": "  "}`)))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
