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

package optimizer

import (
	"github.com/pmezard/go-difflib/difflib"
)

// unifiedDiff renders a unified diff between the original and optimized SQL.
// Identical inputs produce an empty string.
func unifiedDiff(originalSQL, optimizedSQL string) string {
	if originalSQL == optimizedSQL {
		return ""
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(originalSQL),
		B:        difflib.SplitLines(optimizedSQL),
		FromFile: "original.sql",
		ToFile:   "optimized.sql",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}
