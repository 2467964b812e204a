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
	"context"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/prompt"
)

const anthropicMaxTokens = 4096

// anthropicClient talks to the Anthropic Messages API.
type anthropicClient struct {
	client      *anthropic.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

var _ Client = (*anthropicClient)(nil)

func newAnthropicClient(cfg config.LLMConfig, logger *zap.Logger) (*anthropicClient, error) {
	return &anthropicClient{
		client:      anthropic.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      logger.Named("llm.anthropic"),
	}, nil
}

func (c *anthropicClient) Optimize(ctx context.Context, userPrompt string) RewriteResult {
	start := time.Now()
	temperature := c.temperature
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      prompt.SystemPrompt,
		MaxTokens:   anthropicMaxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &userPrompt},
			}},
		},
	})
	if err != nil {
		c.logger.Warn("model call failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return RewriteResult{Error: "model call failed: " + err.Error()}
	}

	text := firstTextBlock(resp)
	if text == "" {
		return RewriteResult{Error: "model returned no text content"}
	}

	c.logger.Debug("model call completed",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)))

	return parseRewriteResponse(text)
}

func (c *anthropicClient) Close() error {
	return nil
}

func firstTextBlock(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
