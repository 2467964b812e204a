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
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/engine"
)

// mysqlHandler implements engine.DialectHandler for MySQL.
type mysqlHandler struct{}

var _ engine.DialectHandler = (*mysqlHandler)(nil)

func (h mysqlHandler) CreateStandardPool(cfg config.EngineConfig) (*sql.DB, error) {
	mysqlCfg := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.DBName,
		AllowNativePasswords: true,
		ParseTime:            true,
	}

	pool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return pool, nil
}

// CreateCloudSQLPool creates a pool that dials through the Cloud SQL connector.
func (h mysqlHandler) CreateCloudSQLPool(cfg config.EngineConfig) (*sql.DB, error) {
	if cfg.User == "" || cfg.Password == "" || cfg.DBName == "" || cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, pass, db, instance)")
	}

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	instance := cfg.CloudSQLInstanceConnectionName
	network := fmt.Sprintf("cloudsql-%s", instance)
	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			return d.Dial(ctx, instance, opts...)
		})

	mysqlCfg := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  network,
		Addr:                 instance,
		DBName:               cfg.DBName,
		AllowNativePasswords: true,
		ParseTime:            true,
	}

	pool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return pool, nil
}

// QuoteIdentifier for MySQL.
func (h mysqlHandler) QuoteIdentifier(name string) string {
	name = strings.Replace(name, "`", "``", -1)
	return fmt.Sprintf("`%s`", name)
}

// QualifyTable joins schema.table. MySQL table references have at most two
// parts, so the catalog is dropped.
func (h mysqlHandler) QualifyTable(catalog, schema, table string) string {
	var parts []string
	for _, p := range []string{schema, table} {
		if p != "" {
			parts = append(parts, h.QuoteIdentifier(p))
		}
	}
	return strings.Join(parts, ".")
}

// ExplainQuery uses the tree format, whose output carries row estimates.
func (h mysqlHandler) ExplainQuery(sqlText string) string {
	return "EXPLAIN FORMAT=TREE " + sqlText
}

func (h mysqlHandler) DescribeQuery(catalog, schema, table string) string {
	return "DESCRIBE " + h.QualifyTable(catalog, schema, table)
}

func (h mysqlHandler) ShowCreateQuery(catalog, schema, table string) string {
	return "SHOW CREATE TABLE " + h.QualifyTable(catalog, schema, table)
}

func init() {
	engine.RegisterDialectHandler("mysql", mysqlHandler{})
	engine.RegisterDialectHandler("cloudsqlmysql", mysqlHandler{})
}
