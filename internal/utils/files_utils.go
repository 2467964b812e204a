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
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadSQLInput resolves the SQL text for a one-shot run: an explicit argument
// wins, then a file path, then stdin.
func ReadSQLInput(arg, filePath string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(arg) != "" {
		return arg, nil
	}
	if filePath != "" {
		return ReadSQLFile(filePath)
	}
	content, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read SQL from stdin: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return "", fmt.Errorf("no SQL provided: pass it as an argument, via --file, or on stdin")
	}
	return string(content), nil
}

// ReadSQLFile reads one SQL statement from a file. A trailing semicolon is
// tolerated and stripped.
func ReadSQLFile(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sqlText := strings.TrimSpace(string(content))
	sqlText = strings.TrimSuffix(sqlText, ";")
	if sqlText == "" {
		return "", fmt.Errorf("file '%s' contains no SQL", filePath)
	}
	return sqlText, nil
}

// WriteTextFile writes report or SQL output, creating or truncating the file.
func WriteTextFile(filePath, content string) error {
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file '%s': %w", filePath, err)
	}
	return nil
}

func GetDefaultOutputFilePath(commandName string) string {
	switch commandName {
	case "optimize":
		return "optimized.sql"
	default:
		return "output.txt"
	}
}
