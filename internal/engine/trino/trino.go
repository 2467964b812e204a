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
package trino

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/trinodb/trino-go-client/trino"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/engine"
)

// trinoHandler implements engine.DialectHandler for Trino coordinators.
type trinoHandler struct{}

var _ engine.DialectHandler = (*trinoHandler)(nil)

// CreateStandardPool opens a pool against the Trino coordinator HTTP endpoint.
// Basic auth is used when a password is configured; session properties are
// forwarded as-is.
func (h trinoHandler) CreateStandardPool(cfg config.EngineConfig) (*sql.DB, error) {
	serverURL := url.URL{
		Scheme: cfg.HTTPScheme,
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			serverURL.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			serverURL.User = url.User(cfg.User)
		}
	}

	trinoCfg := trino.Config{
		ServerURI:         serverURL.String(),
		Source:            cfg.Source,
		Catalog:           cfg.Catalog,
		Schema:            cfg.Schema,
		SessionProperties: cfg.SessionPropsMap(),
	}
	dsn, err := trinoCfg.FormatDSN()
	if err != nil {
		return nil, fmt.Errorf("failed to build Trino DSN: %w", err)
	}

	pool, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening Trino connection: %w", err)
	}
	return pool, nil
}

// CreateCloudSQLPool is not applicable to Trino.
func (h trinoHandler) CreateCloudSQLPool(cfg config.EngineConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("cloud SQL connections are not supported for the trino dialect")
}

// QuoteIdentifier for Trino.
func (h trinoHandler) QuoteIdentifier(name string) string {
	name = strings.Replace(name, `"`, `""`, -1)
	return fmt.Sprintf(`"%s"`, name)
}

// QualifyTable joins catalog.schema.table, omitting absent parts.
func (h trinoHandler) QualifyTable(catalog, schema, table string) string {
	var parts []string
	for _, p := range []string{catalog, schema, table} {
		if p != "" {
			parts = append(parts, h.QuoteIdentifier(p))
		}
	}
	return strings.Join(parts, ".")
}

func (h trinoHandler) ExplainQuery(sqlText string) string {
	return "EXPLAIN " + sqlText
}

// DescribeQuery returns Column | Type | Extra | Comment rows.
func (h trinoHandler) DescribeQuery(catalog, schema, table string) string {
	return "DESCRIBE " + h.QualifyTable(catalog, schema, table)
}

func (h trinoHandler) ShowCreateQuery(catalog, schema, table string) string {
	return "SHOW CREATE TABLE " + h.QualifyTable(catalog, schema, table)
}

func init() {
	engine.RegisterDialectHandler("trino", trinoHandler{})
}
