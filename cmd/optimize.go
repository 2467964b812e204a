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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/optimizer"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/utils"
)

var (
	optimizeInputFile  string
	optimizeOutputFile string
	optimizeJSONOutput bool
)

var optimizeCmd = &cobra.Command{
	Use:     "optimize [sql]",
	Short:   "Optimize a single SQL query",
	Long:    `Runs one query through the rewrite-and-validate loop and prints the result. SQL is taken from the argument, --file, or stdin.`,
	Example: `./sql-optimizer optimize --dialect trino --host trino.example.com --catalog hive --schema web "SELECT * FROM events" --out optimized.sql`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runOptimize,
}

func runOptimize(cmd *cobra.Command, args []string) error {
	var sqlArg string
	if len(args) > 0 {
		sqlArg = args[0]
	}
	sqlText, err := utils.ReadSQLInput(sqlArg, optimizeInputFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, cleanup, err := setupPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out := svc.Optimize(ctx, sqlText)

	if optimizeJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode outcome: %w", err)
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), formatOutcome(out))
	}

	if optimizeOutputFile != "" && out.OptimizedSQL != "" {
		if err := utils.WriteTextFile(optimizeOutputFile, out.OptimizedSQL+"\n"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Optimized SQL written to: %s\n", optimizeOutputFile)
	}

	if !out.OK {
		return fmt.Errorf("optimization failed: %s", out.Error)
	}
	return nil
}

// formatOutcome renders the human-readable report.
func formatOutcome(out optimizer.Outcome) string {
	var b strings.Builder
	if out.OK {
		fmt.Fprintf(&b, "Optimized in %d attempt(s). Risk: %s\n", out.Attempts, out.Risk)
	} else {
		fmt.Fprintf(&b, "Optimization failed after %d attempt(s): %s\n", out.Attempts, out.Error)
	}
	if len(out.Tables) > 0 {
		fmt.Fprintf(&b, "Tables: %s\n", strings.Join(out.Tables, ", "))
	}
	if len(out.Changes) > 0 {
		b.WriteString("Changes:\n")
		for _, c := range out.Changes {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	if len(out.Assumptions) > 0 {
		b.WriteString("Assumptions:\n")
		for _, a := range out.Assumptions {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}
	if out.Diff != "" {
		fmt.Fprintf(&b, "\nDiff:\n%s", out.Diff)
	}
	if out.OptimizedSQL != "" {
		fmt.Fprintf(&b, "\nOptimized SQL:\n%s\n", out.OptimizedSQL)
	}
	return b.String()
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeInputFile, "file", "f", "", "Read the SQL statement from a file")
	optimizeCmd.Flags().StringVarP(&optimizeOutputFile, "out", "o", "", "Write the optimized SQL to a file")
	optimizeCmd.Flags().BoolVar(&optimizeJSONOutput, "json", false, "Print the full outcome as JSON")
}
