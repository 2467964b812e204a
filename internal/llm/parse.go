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
package llm

import (
	"encoding/json"
	"strings"
)

// structuredOutput is the JSON contract every model response must satisfy.
type structuredOutput struct {
	OptimizedSQL string   `json:"optimized_sql"`
	Changes      []string `json:"changes"`
	Assumptions  []string `json:"assumptions"`
	Risk         string   `json:"risk"`
}

// parseRewriteResponse parses raw model text into a RewriteResult. A fenced
// code block around the JSON is tolerated; anything else that fails strict
// unmarshalling is a model-call failure, not a crash.
func parseRewriteResponse(raw string) RewriteResult {
	text := stripCodeFence(strings.TrimSpace(raw))

	var out structuredOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return RewriteResult{
			RawText: raw,
			Error:   "invalid model output: " + err.Error(),
		}
	}

	optimized := strings.TrimSpace(out.OptimizedSQL)
	if optimized == "" {
		return RewriteResult{
			RawText: raw,
			Error:   "model returned empty optimized_sql",
		}
	}

	return RewriteResult{
		OK:           true,
		OptimizedSQL: optimized,
		Changes:      out.Changes,
		Assumptions:  out.Assumptions,
		Risk:         normalizeRisk(out.Risk),
		RawText:      raw,
	}
}

// stripCodeFence removes a surrounding ```...``` block, with or without a
// language tag on the opening fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "sql", or empty).
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeRisk maps the model's risk label onto the closed set; anything
// unexpected becomes "unknown".
func normalizeRisk(risk string) string {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "low":
		return "low"
	case "medium":
		return "medium"
	case "high":
		return "high"
	default:
		return "unknown"
	}
}
