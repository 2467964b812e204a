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

// Package explain runs the engine's plan explanation for a statement and
// scrapes best-effort signals from the plan text.
package explain

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/engine"
)

// Result is the outcome of one plan explanation. Failures are carried as
// values; Run never returns an error.
type Result struct {
	OK            bool
	Text          string
	Error         string
	EstimatedRows *float64
}

// Plan text formats vary by engine and version; the row estimate is the one
// signal extracted, and only when the text happens to carry it.
// Matches "rows: 1.23E6" (Trino) and "rows=1000" (PostgreSQL, MySQL tree).
var rowsEstimatePattern = regexp.MustCompile(`rows[:=]\s*([0-9]+(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?)`)

// Runner requests plan explanations from one engine handle.
type Runner struct {
	exec   engine.Executor
	logger *zap.Logger
}

func NewRunner(exec engine.Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{exec: exec, logger: logger.Named("explain")}
}

// Run explains the given SQL. The engine returns the plan as rows; the first
// column of each non-empty row is concatenated into the plan text.
func (r *Runner) Run(ctx context.Context, sqlText string) Result {
	rows, err := r.exec.Query(ctx, r.exec.ExplainQuery(sqlText))
	if err != nil {
		r.logger.Debug("explain failed", zap.Error(err))
		return Result{OK: false, Error: err.Error()}
	}

	var lines []string
	for _, row := range rows {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		lines = append(lines, fmt.Sprint(row[0]))
	}

	res := Result{OK: true, Text: strings.Join(lines, "\n")}
	res.EstimatedRows = extractRowEstimate(res.Text)
	r.logger.Debug("explain succeeded",
		zap.Int("plan_len", len(res.Text)),
		zap.Bool("has_row_estimate", res.EstimatedRows != nil))
	return res
}

// extractRowEstimate returns the first row-count estimate found in the plan
// text, or nil. Absence of a match is normal, not an error.
func extractRowEstimate(planText string) *float64 {
	m := rowsEstimatePattern.FindStringSubmatch(planText)
	if m == nil {
		return nil
	}
	est, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &est
}
