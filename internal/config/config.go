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
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Engine    EngineConfig
	LLM       LLMConfig
	Optimizer OptimizerConfig
	Server    ServerConfig
}

// EngineConfig holds query-engine connection configuration.
type EngineConfig struct {
	Dialect           string
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	Catalog           string
	Schema            string
	SSLMode           string
	HTTPScheme        string
	Source            string
	SessionProperties string // JSON object of engine session properties

	CloudSQLInstanceConnectionName string
	UsePrivateIP                   bool
}

// LLMConfig holds generative-model provider configuration.
type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	Endpoint    string // optional base URL for OpenAI-compatible gateways
	Temperature float64
}

// OptimizerConfig holds the rewrite-loop behavior knobs.
type OptimizerConfig struct {
	MaxFixAttempts       int
	ReadOnlyMode         bool
	RowEstimateTolerance float64
	PartitionColumnHints []string
}

// ServerConfig holds the HTTP service configuration.
type ServerConfig struct {
	Addr string
}

// DefaultPartitionColumnHints are column names commonly used as physical
// partition keys, checked case-insensitively against fetched columns.
var DefaultPartitionColumnHints = []string{
	"ds", "date", "event_date", "dt", "day", "hour", "event_hour", "partition_date",
}

var envBindings = map[string]string{
	"engine.dialect":            "ENGINE_DIALECT",
	"engine.host":               "TRINO_HOST",
	"engine.port":               "TRINO_PORT",
	"engine.user":               "TRINO_USER",
	"engine.password":           "TRINO_PASSWORD",
	"engine.dbname":             "ENGINE_DBNAME",
	"engine.catalog":            "TRINO_CATALOG",
	"engine.schema":             "TRINO_SCHEMA",
	"engine.sslmode":            "ENGINE_SSLMODE",
	"engine.httpscheme":         "TRINO_HTTP_SCHEME",
	"engine.source":             "TRINO_SOURCE",
	"engine.sessionproperties":  "TRINO_SESSION_PROPERTIES",
	"engine.cloudsqlinstance":   "CLOUDSQL_INSTANCE_CONNECTION_NAME",
	"engine.useprivateip":       "CLOUDSQL_USE_PRIVATE_IP",
	"llm.provider":              "LLM_PROVIDER",
	"llm.apikey":                "AI_API_KEY",
	"llm.model":                 "AI_MODEL",
	"llm.endpoint":              "AI_ENDPOINT",
	"llm.temperature":           "AI_TEMPERATURE",
	"optimizer.maxfixattempts":  "MAX_FIX_ATTEMPTS",
	"optimizer.readonlymode":    "READ_ONLY_MODE",
	"optimizer.rowesttolerance": "ROW_ESTIMATE_TOLERANCE",
	"server.addr":               "SERVER_ADDR",
}

// Load builds a Config from defaults overridden by environment variables.
// Command-line flags layer on top of the result in cmd.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("engine.dialect", "trino")
	v.SetDefault("engine.port", 8080)
	v.SetDefault("engine.catalog", "hive")
	v.SetDefault("engine.schema", "default")
	v.SetDefault("engine.sslmode", "disable")
	v.SetDefault("engine.httpscheme", "http")
	v.SetDefault("engine.source", "sql-optimizer")
	v.SetDefault("engine.sessionproperties", "{}")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4.1-mini")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("optimizer.maxfixattempts", 2)
	v.SetDefault("optimizer.readonlymode", true)
	v.SetDefault("optimizer.rowesttolerance", 1.05)
	v.SetDefault("server.addr", ":8090")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	cfg := &Config{
		Engine: EngineConfig{
			Dialect:                        strings.ToLower(v.GetString("engine.dialect")),
			Host:                           v.GetString("engine.host"),
			Port:                           v.GetInt("engine.port"),
			User:                           v.GetString("engine.user"),
			Password:                       v.GetString("engine.password"),
			DBName:                         v.GetString("engine.dbname"),
			Catalog:                        v.GetString("engine.catalog"),
			Schema:                         v.GetString("engine.schema"),
			SSLMode:                        v.GetString("engine.sslmode"),
			HTTPScheme:                     v.GetString("engine.httpscheme"),
			Source:                         v.GetString("engine.source"),
			SessionProperties:              v.GetString("engine.sessionproperties"),
			CloudSQLInstanceConnectionName: v.GetString("engine.cloudsqlinstance"),
			UsePrivateIP:                   v.GetBool("engine.useprivateip"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			APIKey:      v.GetString("llm.apikey"),
			Model:       v.GetString("llm.model"),
			Endpoint:    v.GetString("llm.endpoint"),
			Temperature: v.GetFloat64("llm.temperature"),
		},
		Optimizer: OptimizerConfig{
			MaxFixAttempts:       v.GetInt("optimizer.maxfixattempts"),
			ReadOnlyMode:         v.GetBool("optimizer.readonlymode"),
			RowEstimateTolerance: v.GetFloat64("optimizer.rowesttolerance"),
			PartitionColumnHints: DefaultPartitionColumnHints,
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
	}
	return cfg, nil
}

// Validate checks the fields every component relies on. Called once at startup.
func (c *Config) Validate() error {
	if c.Engine.Host == "" {
		return fmt.Errorf("engine host is required (set --host or TRINO_HOST)")
	}
	if c.Optimizer.MaxFixAttempts < 0 {
		return fmt.Errorf("max fix attempts must be >= 0, got %d", c.Optimizer.MaxFixAttempts)
	}
	if c.Optimizer.RowEstimateTolerance < 1.0 {
		return fmt.Errorf("row estimate tolerance must be >= 1.0, got %g", c.Optimizer.RowEstimateTolerance)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unsupported llm provider: %s (only openai, anthropic, gemini are supported)", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" && c.LLM.Endpoint == "" {
		return fmt.Errorf("llm API key is required (set --ai-api-key or AI_API_KEY)")
	}
	return nil
}

// SessionPropsMap parses the session-properties JSON. Malformed input
// degrades to an empty map rather than failing connection setup.
func (e EngineConfig) SessionPropsMap() map[string]string {
	props := map[string]string{}
	raw := strings.TrimSpace(e.SessionProperties)
	if raw == "" {
		return props
	}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return map[string]string{}
	}
	return props
}
