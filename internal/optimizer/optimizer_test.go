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

package optimizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/explain"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/llm"
)

// fakeExecutor serves canned rows per statement. EXPLAIN output is keyed by
// the explained SQL so tests can make the baseline and a candidate differ.
type fakeExecutor struct {
	plans      map[string][][]any
	planErrs   map[string]error
	describes  map[string][][]any
	queryCalls []string
}

func (f *fakeExecutor) Query(_ context.Context, sqlText string) ([][]any, error) {
	f.queryCalls = append(f.queryCalls, sqlText)
	if inner, ok := strings.CutPrefix(sqlText, "EXPLAIN "); ok {
		if err := f.planErrs[inner]; err != nil {
			return nil, err
		}
		if rows, ok := f.plans[inner]; ok {
			return rows, nil
		}
		return [][]any{{"TableScan"}}, nil
	}
	if table, ok := strings.CutPrefix(sqlText, "DESCRIBE "); ok {
		return f.describes[table], nil
	}
	return nil, nil
}

func (f *fakeExecutor) ExplainQuery(sqlText string) string { return "EXPLAIN " + sqlText }

func (f *fakeExecutor) DescribeQuery(catalog, schema, table string) string {
	return "DESCRIBE " + f.QualifyTable(catalog, schema, table)
}

func (f *fakeExecutor) ShowCreateQuery(catalog, schema, table string) string { return "" }

func (f *fakeExecutor) QualifyTable(catalog, schema, table string) string {
	return catalog + "." + schema + "." + table
}

// fakeClient replays a scripted sequence of rewrite results, one per call.
type fakeClient struct {
	results []llm.RewriteResult
	prompts []string
	calls   int
}

func (f *fakeClient) Optimize(_ context.Context, userPrompt string) llm.RewriteResult {
	f.prompts = append(f.prompts, userPrompt)
	if f.calls >= len(f.results) {
		return llm.RewriteResult{Error: "no scripted result"}
	}
	res := f.results[f.calls]
	f.calls++
	return res
}

func (f *fakeClient) Close() error { return nil }

func testConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		MaxFixAttempts:       2,
		ReadOnlyMode:         true,
		RowEstimateTolerance: 1.05,
		PartitionColumnHints: config.DefaultPartitionColumnHints,
	}
}

func newTestService(cfg config.OptimizerConfig, exec *fakeExecutor, client *fakeClient) *Service {
	return NewService(cfg, exec, client, "hive", "analytics", zap.NewNop())
}

func TestOptimizeEmptySQL(t *testing.T) {
	svc := newTestService(testConfig(), &fakeExecutor{}, &fakeClient{})

	out := svc.Optimize(context.Background(), "   \n\t")

	assert.False(t, out.OK)
	assert.Equal(t, 0, out.Attempts)
	assert.Equal(t, "empty SQL", out.Error)
	assert.False(t, out.ExplainBefore.OK)
}

func TestOptimizeReadOnlyGateRejectsWrites(t *testing.T) {
	exec := &fakeExecutor{}
	client := &fakeClient{}
	svc := newTestService(testConfig(), exec, client)

	out := svc.Optimize(context.Background(), "DELETE FROM events WHERE ds = '2025-01-01'")

	assert.False(t, out.OK)
	assert.Equal(t, 0, out.Attempts)
	assert.Contains(t, out.Error, "read-only")
	assert.Empty(t, exec.queryCalls, "no statement should reach the engine")
	assert.Zero(t, client.calls)
}

func TestOptimizeReadOnlyGateRejectsUnparseable(t *testing.T) {
	svc := newTestService(testConfig(), &fakeExecutor{}, &fakeClient{})

	out := svc.Optimize(context.Background(), "SELEC broken FROM")

	assert.False(t, out.OK)
	assert.Equal(t, 0, out.Attempts)
	assert.Contains(t, out.Error, "read-only")
}

func TestOptimizeBaselineExplainFailureIsTerminal(t *testing.T) {
	original := "SELECT id FROM missing_table"
	exec := &fakeExecutor{
		planErrs: map[string]error{original: errors.New("table not found")},
	}
	client := &fakeClient{}
	svc := newTestService(testConfig(), exec, client)

	out := svc.Optimize(context.Background(), original)

	assert.False(t, out.OK)
	assert.Equal(t, 0, out.Attempts)
	assert.Contains(t, out.Error, "table not found")
	assert.Zero(t, client.calls, "model must not be consulted when the baseline fails")
}

func TestOptimizeSucceedsFirstAttempt(t *testing.T) {
	original := "SELECT id FROM events"
	candidate := "SELECT id FROM events WHERE ds = '2025-01-01'"
	exec := &fakeExecutor{
		plans: map[string][][]any{
			original:  {{"TableScan rows: 1000000"}},
			candidate: {{"TableScan rows: 5000"}},
		},
		describes: map[string][][]any{
			"hive.analytics.events": {{"id", "bigint"}, {"ds", "varchar"}},
		},
	}
	client := &fakeClient{results: []llm.RewriteResult{{
		OK:           true,
		OptimizedSQL: candidate,
		Changes:      []string{"added partition filter"},
		Risk:         "medium",
	}}}
	svc := newTestService(testConfig(), exec, client)

	out := svc.Optimize(context.Background(), original)

	require.True(t, out.OK, "outcome: %+v", out)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, candidate, out.OptimizedSQL)
	assert.Equal(t, []string{"hive.analytics.events"}, out.Tables)
	require.NotNil(t, out.ExplainAfter)
	assert.True(t, out.ExplainAfter.OK)
	assert.Contains(t, out.Diff, "-SELECT id FROM events")
	assert.Contains(t, out.Diff, "+"+candidate)
	assert.Equal(t, "medium", out.Risk)
	assert.Empty(t, out.Error)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], original)
	assert.Contains(t, client.prompts[0], "rows: 1000000")
	assert.Contains(t, client.prompts[0], "hive.analytics.events")
}

func TestOptimizeFixLoopRecoversFromBadCandidate(t *testing.T) {
	original := "SELECT id FROM events"
	badCandidate := "SELECT id FROM events CROSS JOIN spans"
	goodCandidate := "SELECT id FROM events WHERE ds = '2025-01-01'"
	exec := &fakeExecutor{
		plans: map[string][][]any{
			original:      {{"TableScan rows: 1000"}},
			goodCandidate: {{"TableScan rows: 10"}},
		},
		planErrs: map[string]error{
			badCandidate: errors.New("catalog 'spans' does not exist"),
		},
	}
	client := &fakeClient{results: []llm.RewriteResult{
		{OK: true, OptimizedSQL: badCandidate},
		{OK: true, OptimizedSQL: goodCandidate, Risk: "low"},
	}}
	svc := newTestService(testConfig(), exec, client)

	out := svc.Optimize(context.Background(), original)

	require.True(t, out.OK)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, goodCandidate, out.OptimizedSQL)

	// The second prompt must carry the failing candidate and the reason.
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], badCandidate)
	assert.Contains(t, client.prompts[1], "catalog 'spans' does not exist")
}

func TestOptimizeRejectsRegressedRowEstimate(t *testing.T) {
	original := "SELECT id FROM events WHERE ds = '2025-01-01'"
	worse := "SELECT id FROM events"
	exec := &fakeExecutor{
		plans: map[string][][]any{
			original: {{"TableScan rows: 100"}},
			worse:    {{"TableScan rows: 90000"}},
		},
	}
	client := &fakeClient{results: []llm.RewriteResult{
		{OK: true, OptimizedSQL: worse},
		{OK: true, OptimizedSQL: worse},
		{OK: true, OptimizedSQL: worse},
	}}
	cfg := testConfig()
	svc := newTestService(cfg, exec, client)

	out := svc.Optimize(context.Background(), original)

	assert.False(t, out.OK)
	assert.Equal(t, cfg.MaxFixAttempts+1, out.Attempts)
	assert.Contains(t, out.Error, "did not appear improved")
	assert.Equal(t, worse, out.OptimizedSQL, "last candidate is kept for inspection")
	assert.NotEmpty(t, out.Diff)
}

func TestOptimizeReadOnlyGateAppliesToCandidates(t *testing.T) {
	original := "SELECT id FROM events"
	exec := &fakeExecutor{
		plans: map[string][][]any{original: {{"TableScan"}}},
	}
	client := &fakeClient{results: []llm.RewriteResult{
		{OK: true, OptimizedSQL: "DROP TABLE events"},
	}}
	cfg := testConfig()
	cfg.MaxFixAttempts = 0
	svc := newTestService(cfg, exec, client)

	out := svc.Optimize(context.Background(), original)

	assert.False(t, out.OK)
	assert.Equal(t, 1, out.Attempts)
	assert.Contains(t, out.Error, "read-only")
	// The rejected candidate never reaches the engine.
	for _, call := range exec.queryCalls {
		assert.NotContains(t, call, "DROP TABLE")
	}
}

func TestOptimizeExhaustionUsesDefaultError(t *testing.T) {
	original := "SELECT id FROM events"
	exec := &fakeExecutor{
		plans: map[string][][]any{original: {{"TableScan"}}},
	}
	client := &fakeClient{results: []llm.RewriteResult{
		{Error: "model call failed: rate limited"},
		{Error: "model call failed: rate limited"},
		{Error: "model call failed: rate limited"},
	}}
	svc := newTestService(testConfig(), exec, client)

	out := svc.Optimize(context.Background(), original)

	assert.False(t, out.OK)
	assert.Equal(t, 3, out.Attempts)
	assert.Contains(t, out.Error, "rate limited")
	assert.Empty(t, out.OptimizedSQL)
	assert.Empty(t, out.Diff)
	assert.Equal(t, "unknown", out.Risk)
}

func TestOptimizeMissingEstimatesStillAccepts(t *testing.T) {
	original := "SELECT id FROM events"
	candidate := "SELECT id FROM events LIMIT 100"
	exec := &fakeExecutor{
		plans: map[string][][]any{
			original:  {{"Output layout: [id]"}},
			candidate: {{"Limit 100"}},
		},
	}
	client := &fakeClient{results: []llm.RewriteResult{
		{OK: true, OptimizedSQL: candidate, Risk: "low"},
	}}
	svc := newTestService(testConfig(), exec, client)

	out := svc.Optimize(context.Background(), original)

	require.True(t, out.OK)
	assert.Nil(t, out.ExplainBefore.EstimatedRows)
}

func TestIsImproved(t *testing.T) {
	est := func(v float64) *float64 { return &v }
	cases := []struct {
		name      string
		before    explain.Result
		after     explain.Result
		tolerance float64
		want      bool
	}{
		{"after failed", explain.Result{OK: true}, explain.Result{OK: false}, 1.05, false},
		{"both missing estimates", explain.Result{OK: true}, explain.Result{OK: true}, 1.05, true},
		{"before missing estimate", explain.Result{OK: true}, explain.Result{OK: true, EstimatedRows: est(10)}, 1.05, true},
		{"within tolerance", explain.Result{OK: true, EstimatedRows: est(100)}, explain.Result{OK: true, EstimatedRows: est(104)}, 1.05, true},
		{"at boundary", explain.Result{OK: true, EstimatedRows: est(100)}, explain.Result{OK: true, EstimatedRows: est(105)}, 1.05, true},
		{"beyond tolerance", explain.Result{OK: true, EstimatedRows: est(100)}, explain.Result{OK: true, EstimatedRows: est(106)}, 1.05, false},
		{"zero tolerance falls back to equality", explain.Result{OK: true, EstimatedRows: est(100)}, explain.Result{OK: true, EstimatedRows: est(100)}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isImproved(tc.before, tc.after, tc.tolerance))
		})
	}
}

func TestUnifiedDiff(t *testing.T) {
	t.Run("identical input yields empty diff", func(t *testing.T) {
		assert.Empty(t, unifiedDiff("SELECT 1", "SELECT 1"))
	})

	t.Run("changed input yields headers and hunks", func(t *testing.T) {
		diff := unifiedDiff("SELECT *\nFROM events", "SELECT id\nFROM events")
		assert.Contains(t, diff, "--- original.sql")
		assert.Contains(t, diff, "+++ optimized.sql")
		assert.Contains(t, diff, "-SELECT *")
		assert.Contains(t, diff, "+SELECT id")
		assert.Contains(t, diff, " FROM events")
	})
}
