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
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
)

// Executor is the engine-execution handle consumed by the optimization
// pipeline. It runs a statement and returns every row as an ordered value
// slice, and renders the dialect-specific statement forms the pipeline needs.
type Executor interface {
	Query(ctx context.Context, sqlText string) ([][]any, error)
	ExplainQuery(sqlText string) string
	DescribeQuery(catalog, schema, table string) string
	ShowCreateQuery(catalog, schema, table string) string
	QualifyTable(catalog, schema, table string) string
}

var _ Executor = (*DB)(nil)

// DB holds the connection pool and dialect handler for one engine.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.EngineConfig

	logger *zap.Logger
}

// DialectHandler abstracts over the engines a pipeline run can target.
// Implementations live in subpackages and register themselves in init.
type DialectHandler interface {
	CreateStandardPool(cfg config.EngineConfig) (*sql.DB, error)
	CreateCloudSQLPool(cfg config.EngineConfig) (*sql.DB, error)
	QuoteIdentifier(name string) string
	QualifyTable(catalog, schema, table string) string
	ExplainQuery(sqlText string) string
	DescribeQuery(catalog, schema, table string) string
	// ShowCreateQuery returns "" when the dialect has no DDL-retrieval form.
	ShowCreateQuery(catalog, schema, table string) string
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		zap.L().Warn("dialect handler is being overwritten", zap.String("dialect", dialect))
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported engine dialect: %s", dialect)
	}
	return handler, nil
}

// New creates a connection pool for the configured dialect and verifies it
// with a ping. Each pipeline run should hold its own *DB.
func New(cfg config.EngineConfig, logger *zap.Logger) (*DB, error) {
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var pool *sql.DB
	if strings.HasPrefix(cfg.Dialect, "cloudsql") {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}
	if err != nil {
		return nil, &ErrConnection{Msg: fmt.Sprintf("failed to create pool for dialect %s", cfg.Dialect), Err: err}
	}

	if err := pool.PingContext(context.Background()); err != nil {
		pool.Close()
		return nil, &ErrConnection{Msg: fmt.Sprintf("ping failed for dialect %s", cfg.Dialect), Err: err}
	}

	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
		logger:  logger.Named("engine"),
	}, nil
}

func (db *DB) GetConfig() config.EngineConfig {
	return db.Config
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return &ErrConnection{Msg: "connection pool is not initialized"}
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	return nil
}

// Query executes a statement and materializes every row as []any.
// Byte slices are converted to strings so callers see plain text values.
func (db *DB) Query(ctx context.Context, sqlText string) ([][]any, error) {
	if db.Pool == nil {
		return nil, &ErrConnection{Msg: "connection pool is not initialized"}
	}

	db.logger.Debug("executing statement", zap.Int("sql_len", len(sqlText)))

	rows, err := db.Pool.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &ErrQueryExecution{Msg: "query failed", Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ErrQueryExecution{Msg: "failed to read result columns", Err: err}
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ErrQueryExecution{Msg: "failed to scan result row", Err: err}
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &ErrQueryExecution{Msg: "result iteration failed", Err: err}
	}
	return out, nil
}

func (db *DB) ExplainQuery(sqlText string) string {
	return db.Handler.ExplainQuery(sqlText)
}

func (db *DB) DescribeQuery(catalog, schema, table string) string {
	return db.Handler.DescribeQuery(catalog, schema, table)
}

func (db *DB) ShowCreateQuery(catalog, schema, table string) string {
	return db.Handler.ShowCreateQuery(catalog, schema, table)
}

func (db *DB) QualifyTable(catalog, schema, table string) string {
	return db.Handler.QualifyTable(catalog, schema, table)
}
