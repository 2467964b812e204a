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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/engine"
)

// postgresHandler implements engine.DialectHandler for PostgreSQL.
type postgresHandler struct{}

var _ engine.DialectHandler = (*postgresHandler)(nil)

// CreateStandardPool creates a standard PostgreSQL connection pool.
func (h postgresHandler) CreateStandardPool(cfg config.EngineConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	pool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return pool, nil
}

// CreateCloudSQLPool creates a pool that dials through the Cloud SQL connector.
func (h postgresHandler) CreateCloudSQLPool(cfg config.EngineConfig) (*sql.DB, error) {
	if cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("cloud SQL instance connection name is required for dialect cloudsqlpostgres")
	}

	dsn := fmt.Sprintf("user=%s password=%s database=%s", cfg.User, cfg.Password, cfg.DBName)
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	var opts []cloudsqlconn.Option
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	instance := cfg.CloudSQLInstanceConnectionName
	connConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(ctx, instance)
	}

	dbURI := stdlib.RegisterConnConfig(connConfig)
	pool, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return pool, nil
}

// QuoteIdentifier for PostgreSQL.
func (h postgresHandler) QuoteIdentifier(name string) string {
	name = strings.Replace(name, `"`, `""`, -1)
	return fmt.Sprintf(`"%s"`, name)
}

// QualifyTable joins schema.table. PostgreSQL has no cross-catalog
// references, so the catalog part is dropped.
func (h postgresHandler) QualifyTable(catalog, schema, table string) string {
	var parts []string
	for _, p := range []string{schema, table} {
		if p != "" {
			parts = append(parts, h.QuoteIdentifier(p))
		}
	}
	return strings.Join(parts, ".")
}

func (h postgresHandler) ExplainQuery(sqlText string) string {
	return "EXPLAIN " + sqlText
}

// DescribeQuery emulates DESCRIBE through information_schema, returning
// name/type pairs in ordinal order.
func (h postgresHandler) DescribeQuery(catalog, schema, table string) string {
	if schema == "" {
		schema = "public"
	}
	return fmt.Sprintf(
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = %s AND table_name = %s ORDER BY ordinal_position",
		quoteLiteral(schema), quoteLiteral(table),
	)
}

// ShowCreateQuery is empty: PostgreSQL has no SHOW CREATE TABLE form, so
// table properties are unavailable for this dialect.
func (h postgresHandler) ShowCreateQuery(catalog, schema, table string) string {
	return ""
}

func quoteLiteral(s string) string {
	return "'" + strings.Replace(s, "'", "''", -1) + "'"
}

func init() {
	engine.RegisterDialectHandler("postgres", postgresHandler{})
	engine.RegisterDialectHandler("cloudsqlpostgres", postgresHandler{})
}
