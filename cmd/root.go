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
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/engine"
	_ "github.com/GoogleCloudPlatform/sql-optimizer/internal/engine/mysql"
	_ "github.com/GoogleCloudPlatform/sql-optimizer/internal/engine/postgres"
	_ "github.com/GoogleCloudPlatform/sql-optimizer/internal/engine/trino"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/llm"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/optimizer"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	verbose bool

	// Engine connection flags
	dialect                        string
	host                           string
	port                           int
	username                       string
	password                       string
	dbName                         string
	catalog                        string
	schema                         string
	cloudSQLInstanceConnectionName string
	cloudSQLUsePrivateIP           bool

	// Model flags
	llmProvider string
	aiAPIKey    string
	aiModel     string
	aiEndpoint  string

	// Loop flags
	maxFixAttempts int
	readOnlyMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "sql-optimizer",
	Short: "A tool that rewrites SQL queries for better performance using a generative model",
	Long: `sql-optimizer explains a query against the target engine, gathers table
metadata, and drives a bounded rewrite-and-validate loop with a generative
model. A rewrite is only accepted when the engine explains it successfully and
its plan does not regress against the baseline.`,
	PersistentPreRunE: initFlagsAndConfig,
}

// initFlagsAndConfig loads env-sourced configuration and layers explicitly
// set flags on top.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	if cmd != nil {
		flags := cmd.Flags()
		if flags.Changed("dialect") {
			cfg.Engine.Dialect = strings.ToLower(dialect)
		}
		if flags.Changed("host") {
			cfg.Engine.Host = host
		}
		if flags.Changed("port") {
			cfg.Engine.Port = port
		}
		if flags.Changed("username") {
			cfg.Engine.User = username
		}
		if flags.Changed("password") {
			cfg.Engine.Password = password
		}
		if flags.Changed("database") {
			cfg.Engine.DBName = dbName
		}
		if flags.Changed("catalog") {
			cfg.Engine.Catalog = catalog
		}
		if flags.Changed("schema") {
			cfg.Engine.Schema = schema
		}
		if flags.Changed("cloudsql-instance-connection-name") {
			cfg.Engine.CloudSQLInstanceConnectionName = cloudSQLInstanceConnectionName
		}
		if flags.Changed("cloudsql-use-private-ip") {
			cfg.Engine.UsePrivateIP = cloudSQLUsePrivateIP
		}
		if flags.Changed("llm-provider") {
			cfg.LLM.Provider = strings.ToLower(llmProvider)
		}
		if flags.Changed("ai-api-key") {
			cfg.LLM.APIKey = aiAPIKey
		}
		if flags.Changed("ai-model") {
			cfg.LLM.Model = aiModel
		}
		if flags.Changed("ai-endpoint") {
			cfg.LLM.Endpoint = aiEndpoint
		}
		if flags.Changed("max-fix-attempts") {
			cfg.Optimizer.MaxFixAttempts = maxFixAttempts
		}
		if flags.Changed("read-only") {
			cfg.Optimizer.ReadOnlyMode = readOnlyMode
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// setupPipeline connects the engine, builds the model client, and wires the
// optimization service. The returned cleanup closes both handles.
func setupPipeline(ctx context.Context) (*optimizer.Service, func(), error) {
	db, err := engine.New(cfg.Engine, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to engine: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create model client: %w", err)
	}

	svc := optimizer.NewService(cfg.Optimizer, db, client, cfg.Engine.Catalog, cfg.Engine.Schema, logger)
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close model client", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			logger.Warn("failed to close engine pool", zap.Error(err))
		}
	}
	return svc, cleanup, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() {
		if logger != nil {
			logger.Sync()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Engine connection flags
	rootCmd.PersistentFlags().StringVar(&dialect, "dialect", "", fmt.Sprintf("Engine dialect (%s)", strings.Join([]string{"trino", "postgres", "mysql", "cloudsqlpostgres", "cloudsqlmysql"}, ", ")))
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Engine host (or TRINO_HOST)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Engine port")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Engine username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Engine password")
	rootCmd.PersistentFlags().StringVar(&dbName, "database", "", "Database name (postgres/mysql dialects)")
	rootCmd.PersistentFlags().StringVar(&catalog, "catalog", "", "Default catalog for unqualified tables (trino)")
	rootCmd.PersistentFlags().StringVar(&schema, "schema", "", "Default schema for unqualified tables")
	rootCmd.PersistentFlags().StringVar(&cloudSQLInstanceConnectionName, "cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	rootCmd.PersistentFlags().BoolVar(&cloudSQLUsePrivateIP, "cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection")

	// Model flags
	rootCmd.PersistentFlags().StringVar(&llmProvider, "llm-provider", "", "Model provider (openai, anthropic, gemini; or LLM_PROVIDER)")
	rootCmd.PersistentFlags().StringVar(&aiAPIKey, "ai-api-key", "", "Model API key (or AI_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&aiModel, "ai-model", "", "Model name (or AI_MODEL)")
	rootCmd.PersistentFlags().StringVar(&aiEndpoint, "ai-endpoint", "", "Custom base URL for OpenAI-compatible gateways (or AI_ENDPOINT)")

	// Loop flags
	rootCmd.PersistentFlags().IntVar(&maxFixAttempts, "max-fix-attempts", 2, "Maximum number of fix attempts after the initial rewrite")
	rootCmd.PersistentFlags().BoolVar(&readOnlyMode, "read-only", true, "Reject any statement that is not a query")

	// Add subcommands
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(serveCmd)
}
