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
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/prompt"
)

// openaiClient talks to OpenAI or any OpenAI-compatible gateway.
type openaiClient struct {
	client      *openai.Client
	model       string
	temperature float64
	logger      *zap.Logger
}

var _ Client = (*openaiClient)(nil)

func newOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) (*openaiClient, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	return &openaiClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.Named("llm.openai"),
	}, nil
}

func (c *openaiClient) Optimize(ctx context.Context, userPrompt string) RewriteResult {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: float32(c.temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		c.logger.Warn("model call failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return RewriteResult{Error: "model call failed: " + err.Error()}
	}
	if len(resp.Choices) == 0 {
		return RewriteResult{Error: "model returned no choices"}
	}

	c.logger.Debug("model call completed",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return parseRewriteResponse(resp.Choices[0].Message.Content)
}

func (c *openaiClient) Close() error {
	return nil
}
