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
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the optimization HTTP service",
	Long:    `Starts an HTTP server exposing POST /optimize and GET /healthz.`,
	Example: `./sql-optimizer serve --dialect trino --host trino.example.com --addr :8090`,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}

	svc, cleanup, err := setupPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	return server.New(svc, logger).ListenAndServe(cfg.Server.Addr)
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "Listen address (or SERVER_ADDR)")
}
