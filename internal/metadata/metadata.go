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

// Package metadata gathers per-table schema information used to ground the
// rewrite prompt: column lists, best-effort table properties, and
// partition-candidate hints.
package metadata

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/engine"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/sqlparse"
)

// ddlSnippetCap bounds the DDL text retained for prompting.
const ddlSnippetCap = 2000

// ColumnInfo holds one column's name and declared type.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableMetadata is everything gathered for one referenced table. Built once
// per pipeline run and discarded with it.
type TableMetadata struct {
	Table               sqlparse.TableRef
	Columns             []ColumnInfo
	PartitionCandidates []string
	Properties          map[string]string
}

// Gatherer fetches metadata through one engine handle. Tables are processed
// sequentially, one request per table.
type Gatherer struct {
	exec           engine.Executor
	defaultCatalog string
	defaultSchema  string
	partitionHints []string
	logger         *zap.Logger
}

func NewGatherer(exec engine.Executor, defaultCatalog, defaultSchema string, partitionHints []string, logger *zap.Logger) *Gatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatherer{
		exec:           exec,
		defaultCatalog: defaultCatalog,
		defaultSchema:  defaultSchema,
		partitionHints: partitionHints,
		logger:         logger.Named("metadata"),
	}
}

// Gather produces one TableMetadata per reference, in input order. Nothing
// here is fatal: a table whose describe fails yields an empty column list,
// and property fetching degrades to an empty map.
func (g *Gatherer) Gather(ctx context.Context, refs []sqlparse.TableRef) []TableMetadata {
	out := make([]TableMetadata, 0, len(refs))
	for _, ref := range refs {
		qualified := g.qualify(ref)
		cols := g.fetchColumns(ctx, qualified)
		props := g.fetchProperties(ctx, qualified)
		out = append(out, TableMetadata{
			Table:               qualified,
			Columns:             cols,
			PartitionCandidates: inferPartitionCandidates(g.partitionHints, cols),
			Properties:          props,
		})
	}
	return out
}

// qualify fills missing catalog/schema parts from the configured defaults.
func (g *Gatherer) qualify(ref sqlparse.TableRef) sqlparse.TableRef {
	if ref.Catalog == "" {
		ref.Catalog = g.defaultCatalog
	}
	if ref.Schema == "" {
		ref.Schema = g.defaultSchema
	}
	return ref
}

func (g *Gatherer) fetchColumns(ctx context.Context, ref sqlparse.TableRef) []ColumnInfo {
	stmt := g.exec.DescribeQuery(ref.Catalog, ref.Schema, ref.Table)
	rows, err := g.exec.Query(ctx, stmt)
	if err != nil {
		g.logger.Warn("failed to describe table",
			zap.String("table", ref.FQTN()), zap.Error(err))
		return nil
	}

	cols := make([]ColumnInfo, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		name := fmt.Sprint(row[0])
		if name == "" {
			continue
		}
		colType := "unknown"
		if len(row) > 1 && row[1] != nil {
			colType = fmt.Sprint(row[1])
		}
		cols = append(cols, ColumnInfo{Name: name, Type: colType})
	}
	return cols
}

// fetchProperties retrieves the table DDL when the dialect supports it.
// Connector-specific partition metadata is not parsed reliably here; the DDL
// snippet is kept as a hint for the prompt.
func (g *Gatherer) fetchProperties(ctx context.Context, ref sqlparse.TableRef) map[string]string {
	props := map[string]string{}

	stmt := g.exec.ShowCreateQuery(ref.Catalog, ref.Schema, ref.Table)
	if stmt == "" {
		return props
	}

	rows, err := g.exec.Query(ctx, stmt)
	if err != nil {
		g.logger.Warn("failed to fetch table DDL",
			zap.String("table", ref.FQTN()), zap.Error(err))
		return props
	}

	// The DDL lands in the last column: Trino returns one column, MySQL
	// returns name + DDL.
	var lines []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		last := row[len(row)-1]
		if last == nil {
			continue
		}
		lines = append(lines, fmt.Sprint(last))
	}
	ddl := strings.Join(lines, "\n")
	if ddl == "" {
		return props
	}

	if strings.Contains(ddl, "WITH (") {
		props["has_with_properties"] = "true"
	}
	if len(ddl) > ddlSnippetCap {
		ddl = ddl[:ddlSnippetCap]
	}
	props["create_table_snippet"] = ddl
	return props
}

// inferPartitionCandidates surfaces configured partition-like column names
// present in the column set. A pure name heuristic: true partition
// introspection is connector-specific and out of scope.
func inferPartitionCandidates(hints []string, cols []ColumnInfo) []string {
	names := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		names[strings.ToLower(c.Name)] = struct{}{}
	}
	var candidates []string
	for _, hint := range hints {
		if _, ok := names[strings.ToLower(hint)]; ok {
			candidates = append(candidates, hint)
		}
	}
	return candidates
}
