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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRewriteResponse(t *testing.T) {
	t.Run("plain JSON round-trips", func(t *testing.T) {
		raw := `{"optimized_sql":"SELECT 1","changes":["x"],"assumptions":[],"risk":"low"}`

		res := parseRewriteResponse(raw)

		require.True(t, res.OK)
		assert.Equal(t, "SELECT 1", res.OptimizedSQL)
		assert.Equal(t, []string{"x"}, res.Changes)
		assert.Empty(t, res.Assumptions)
		assert.Equal(t, "low", res.Risk)
		assert.Equal(t, raw, res.RawText)
	})

	t.Run("fenced JSON with language tag", func(t *testing.T) {
		raw := "```json\n{\"optimized_sql\":\"SELECT id FROM events\",\"changes\":[],\"assumptions\":[],\"risk\":\"medium\"}\n```"

		res := parseRewriteResponse(raw)

		require.True(t, res.OK)
		assert.Equal(t, "SELECT id FROM events", res.OptimizedSQL)
		assert.Equal(t, "medium", res.Risk)
	})

	t.Run("fenced JSON without language tag", func(t *testing.T) {
		raw := "```\n{\"optimized_sql\":\"SELECT 2\",\"risk\":\"high\"}\n```"

		res := parseRewriteResponse(raw)

		require.True(t, res.OK)
		assert.Equal(t, "SELECT 2", res.OptimizedSQL)
		assert.Equal(t, "high", res.Risk)
	})

	t.Run("invalid JSON is a failure, not a crash", func(t *testing.T) {
		res := parseRewriteResponse("Here is your optimized query: SELECT 1")

		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "invalid model output")
		assert.Equal(t, "Here is your optimized query: SELECT 1", res.RawText)
	})

	t.Run("empty optimized_sql is a failure", func(t *testing.T) {
		res := parseRewriteResponse(`{"optimized_sql":"  ","changes":[],"assumptions":[],"risk":"low"}`)

		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "empty optimized_sql")
	})

	t.Run("unexpected risk label becomes unknown", func(t *testing.T) {
		res := parseRewriteResponse(`{"optimized_sql":"SELECT 1","risk":"catastrophic"}`)

		require.True(t, res.OK)
		assert.Equal(t, "unknown", res.Risk)
	})
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with trailing whitespace", "```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripCodeFence(strings.TrimSpace(tc.in)))
		})
	}
}
