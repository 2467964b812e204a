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

// Package llm is the generative-model collaborator: a text prompt in, a
// structured rewrite result out. Provider selection happens once at
// configuration time; the pipeline only sees the Client interface.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
)

// RewriteResult is the parsed outcome of one model invocation. Failures are
// carried as values with OK=false and a message.
type RewriteResult struct {
	OK           bool
	OptimizedSQL string
	Changes      []string
	Assumptions  []string
	Risk         string
	RawText      string
	Error        string
}

// Client is the generative-model handle consumed by the orchestrator.
type Client interface {
	// Optimize sends the prompt and parses the structured rewrite output.
	Optimize(ctx context.Context, userPrompt string) RewriteResult

	// Close cleans up any resources used by the client.
	Close() error
}

// NewClient builds the provider selected by configuration.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg, logger)
	case "anthropic":
		return newAnthropicClient(cfg, logger)
	case "gemini":
		return newGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
