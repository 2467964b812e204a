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

import "github.com/GoogleCloudPlatform/sql-optimizer/internal/explain"

// isImproved decides whether a candidate's plan is acceptable relative to the
// baseline. The candidate must have a successful plan. When both plans carry a
// row estimate, the candidate may not exceed the baseline by more than the
// configured tolerance; when either estimate is missing, a successful plan is
// enough. Row estimates are a coarse signal and real engines routinely omit
// them, so absence is never treated as a regression.
func isImproved(before, after explain.Result, tolerance float64) bool {
	if !after.OK {
		return false
	}
	if before.EstimatedRows == nil || after.EstimatedRows == nil {
		return true
	}
	if tolerance <= 0 {
		tolerance = 1.0
	}
	return *after.EstimatedRows <= *before.EstimatedRows*tolerance
}
