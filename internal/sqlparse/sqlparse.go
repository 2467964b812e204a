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

// Package sqlparse provides table-reference extraction and the read-only
// statement gate used by the optimization pipeline.
package sqlparse

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// TableRef identifies one referenced table. Catalog and Schema may be empty
// for unqualified references; defaults are filled in by metadata gathering.
type TableRef struct {
	Catalog string
	Schema  string
	Table   string
}

// FQTN returns the fully-qualified textual form, omitting absent parts.
func (t TableRef) FQTN() string {
	var parts []string
	for _, p := range []string{t.Catalog, t.Schema, t.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// tableVisitor collects table references and CTE names from a statement.
type tableVisitor struct {
	seen     map[TableRef]struct{}
	refs     []TableRef
	cteNames map[string]struct{}
}

func newTableVisitor() *tableVisitor {
	return &tableVisitor{
		seen:     make(map[TableRef]struct{}),
		cteNames: make(map[string]struct{}),
	}
}

func (v *tableVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch node := n.(type) {
	case *ast.TableName:
		ref := TableRef{
			Schema: node.Schema.String(),
			Table:  node.Name.String(),
		}
		if ref.Table != "" {
			if _, dup := v.seen[ref]; !dup {
				v.seen[ref] = struct{}{}
				v.refs = append(v.refs, ref)
			}
		}
	case *ast.CommonTableExpression:
		v.cteNames[strings.ToLower(node.Name.String())] = struct{}{}
	}
	return n, false
}

func (v *tableVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

// tables returns the collected references with CTE self-references dropped.
func (v *tableVisitor) tables() []TableRef {
	if len(v.cteNames) == 0 {
		return v.refs
	}
	out := make([]TableRef, 0, len(v.refs))
	for _, ref := range v.refs {
		if ref.Schema == "" && ref.Catalog == "" {
			if _, isCTE := v.cteNames[strings.ToLower(ref.Table)]; isCTE {
				continue
			}
		}
		out = append(out, ref)
	}
	return out
}

// ExtractTables parses a single statement and returns the ordered, deduped
// set of referenced tables. Unqualified CTE references are excluded.
func ExtractTables(sqlText string) ([]TableRef, error) {
	stmt, err := parseOne(sqlText)
	if err != nil {
		return nil, err
	}
	v := newTableVisitor()
	stmt.Accept(v)
	return v.tables(), nil
}

// IsQueryOnly reports whether the input parses as a single data-retrieval
// statement. Parse failures count as not query-only: when the gate cannot
// prove a statement is read-only it rejects it.
func IsQueryOnly(sqlText string) bool {
	stmt, err := parseOne(sqlText)
	if err != nil {
		return false
	}
	switch stmt.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
		return true
	default:
		return false
	}
}

// parseOne parses exactly one statement. A fresh parser per call keeps
// concurrent pipeline runs independent.
func parseOne(sqlText string) (ast.StmtNode, error) {
	p := parser.New()
	stmts, _, err := p.Parse(sqlText, "", "")
	if err != nil {
		return nil, fmt.Errorf("parse SQL failed: %w", err)
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("no statements found")
	}
	if len(stmts) > 1 {
		return nil, fmt.Errorf("expected a single statement, got %d", len(stmts))
	}
	return stmts[0], nil
}
