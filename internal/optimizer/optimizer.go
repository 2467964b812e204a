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

// Package optimizer drives the rewrite-and-validate loop: baseline plan,
// metadata gathering, bounded model attempts, and the final verdict.
package optimizer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/engine"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/explain"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/llm"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/metadata"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/prompt"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/sqlparse"
)

// Outcome is the terminal record of one pipeline run.
// If OK is true, OptimizedSQL is set, ExplainAfter is set, and the candidate
// satisfied the improvement check against ExplainBefore. If OK is false,
// Error carries the last failure reason.
type Outcome struct {
	OK            bool
	OriginalSQL   string
	OptimizedSQL  string
	ExplainBefore explain.Result
	ExplainAfter  *explain.Result
	Tables        []string
	Metadata      []metadata.TableMetadata
	Attempts      int
	Diff          string
	Error         string
	Changes       []string
	Assumptions   []string
	Risk          string
}

// Service composes the pipeline collaborators. It holds no per-run state:
// everything an attempt loop tracks lives in Optimize's locals, so one
// Service value can serve sequential runs without leakage.
type Service struct {
	cfg       config.OptimizerConfig
	explainer *explain.Runner
	gatherer  *metadata.Gatherer
	llm       llm.Client
	logger    *zap.Logger

	// Table-extraction collaborator, swappable in tests.
	extractTables func(string) ([]sqlparse.TableRef, error)
	isQueryOnly   func(string) bool
}

func NewService(cfg config.OptimizerConfig, exec engine.Executor, client llm.Client, defaultCatalog, defaultSchema string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:           cfg,
		explainer:     explain.NewRunner(exec, logger),
		gatherer:      metadata.NewGatherer(exec, defaultCatalog, defaultSchema, cfg.PartitionColumnHints, logger),
		llm:           client,
		logger:        logger.Named("optimizer"),
		extractTables: sqlparse.ExtractTables,
		isQueryOnly:   sqlparse.IsQueryOnly,
	}
}

// Optimize runs the full pipeline for one query.
func (s *Service) Optimize(ctx context.Context, sqlText string) Outcome {
	originalSQL := strings.TrimSpace(sqlText)
	if originalSQL == "" {
		return Outcome{
			ExplainBefore: explain.Result{Error: "empty SQL"},
			Error:         "empty SQL",
		}
	}

	if s.cfg.ReadOnlyMode && !s.isQueryOnly(originalSQL) {
		msg := "only query statements are allowed in read-only mode"
		return Outcome{
			OriginalSQL:   originalSQL,
			ExplainBefore: explain.Result{Error: msg},
			Error:         msg,
		}
	}

	explainBefore := s.explainer.Run(ctx, originalSQL)
	if !explainBefore.OK {
		return Outcome{
			OriginalSQL:   originalSQL,
			ExplainBefore: explainBefore,
			Error:         "explain failed for original SQL: " + explainBefore.Error,
		}
	}

	refs, err := s.extractTables(originalSQL)
	if err != nil {
		// Metadata is advisory grounding for the prompt; a reference set the
		// grammar cannot produce just means the model gets less context.
		s.logger.Warn("table extraction failed, proceeding without metadata", zap.Error(err))
		refs = nil
	}
	metas := s.gatherer.Gather(ctx, refs)
	tables := make([]string, len(metas))
	for i, tm := range metas {
		tables[i] = tm.Table.FQTN()
	}

	initialPrompt := prompt.BuildOptimizerPrompt(originalSQL, explainBefore.Text, metas)

	// Per-run loop state. Deliberately local: see the concurrency contract.
	var (
		candidateSQL string
		explainAfter *explain.Result
		lastRewrite  llm.RewriteResult
		lastError    string
		attempts     int
	)

	for i := 0; i <= s.cfg.MaxFixAttempts; i++ {
		attempts = i + 1

		var userPrompt string
		if i == 0 {
			userPrompt = initialPrompt
		} else {
			feedback := lastError
			if feedback == "" {
				feedback = "unknown failure"
			}
			userPrompt = prompt.BuildFixPrompt(originalSQL, candidateSQL, feedback, explainBefore.Text, metas)
		}

		res := s.llm.Optimize(ctx, userPrompt)
		if !res.OK || res.OptimizedSQL == "" {
			lastError = res.Error
			if lastError == "" {
				lastError = "model returned empty output"
			}
			s.logger.Info("attempt failed", zap.Int("attempt", attempts), zap.String("reason", lastError))
			continue
		}

		candidateSQL = strings.TrimSpace(res.OptimizedSQL)
		lastRewrite = res

		if s.cfg.ReadOnlyMode && !s.isQueryOnly(candidateSQL) {
			lastError = "candidate SQL is not a query statement (read-only mode)"
			s.logger.Info("attempt failed", zap.Int("attempt", attempts), zap.String("reason", lastError))
			continue
		}

		after := s.explainer.Run(ctx, candidateSQL)
		explainAfter = &after
		if !after.OK {
			lastError = "explain failed: " + after.Error
			s.logger.Info("attempt failed", zap.Int("attempt", attempts), zap.String("reason", lastError))
			continue
		}

		if isImproved(explainBefore, after, s.cfg.RowEstimateTolerance) {
			s.logger.Info("candidate accepted",
				zap.Int("attempts", attempts),
				zap.String("risk", lastRewrite.Risk))
			return Outcome{
				OK:            true,
				OriginalSQL:   originalSQL,
				OptimizedSQL:  candidateSQL,
				ExplainBefore: explainBefore,
				ExplainAfter:  explainAfter,
				Tables:        tables,
				Metadata:      metas,
				Attempts:      attempts,
				Diff:          unifiedDiff(originalSQL, candidateSQL),
				Changes:       lastRewrite.Changes,
				Assumptions:   lastRewrite.Assumptions,
				Risk:          riskOrUnknown(lastRewrite.Risk),
			}
		}

		lastError = "candidate SQL did not appear improved based on explain signals"
		s.logger.Info("attempt failed", zap.Int("attempt", attempts), zap.String("reason", lastError))
	}

	if lastError == "" {
		lastError = "failed to produce a valid optimized query"
	}
	var diff string
	if candidateSQL != "" {
		diff = unifiedDiff(originalSQL, candidateSQL)
	}
	return Outcome{
		OriginalSQL:   originalSQL,
		OptimizedSQL:  candidateSQL,
		ExplainBefore: explainBefore,
		ExplainAfter:  explainAfter,
		Tables:        tables,
		Metadata:      metas,
		Attempts:      attempts,
		Diff:          diff,
		Error:         lastError,
		Changes:       lastRewrite.Changes,
		Assumptions:   lastRewrite.Assumptions,
		Risk:          riskOrUnknown(lastRewrite.Risk),
	}
}

func riskOrUnknown(risk string) string {
	if risk == "" {
		return "unknown"
	}
	return risk
}
