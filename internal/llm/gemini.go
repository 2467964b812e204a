package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/config"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/prompt"
)

// geminiClient talks to the Google Gemini API.
type geminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

var _ Client = (*geminiClient)(nil)

func newGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cannot create Gemini client: API key is missing")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiClient{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      logger.Named("llm.gemini"),
	}, nil
}

func (c *geminiClient) Optimize(ctx context.Context, userPrompt string) RewriteResult {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt.SystemPrompt)},
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		c.logger.Warn("model call failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return RewriteResult{Error: "model call failed: " + describeGeminiError(err)}
	}

	text, err := firstTextPart(resp)
	if err != nil {
		return RewriteResult{Error: err.Error()}
	}

	c.logger.Debug("model call completed",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)))

	return parseRewriteResponse(text)
}

func (c *geminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// describeGeminiError surfaces auth problems distinctly so a misconfigured
// key is obvious in the attempt trail.
func describeGeminiError(err error) string {
	if st, ok := status.FromError(err); ok {
		if st.Code() == 16 /* UNAUTHENTICATED */ || st.Code() == 7 /* PERMISSION_DENIED */ {
			return fmt.Sprintf("invalid Gemini API key or insufficient permissions: %v", err)
		}
	}
	return err.Error()
}

// firstTextPart extracts the first text part from a Gemini response.
func firstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if resp != nil && len(resp.Candidates) > 0 {
			finishReason = resp.Candidates[0].FinishReason.String()
		}
		return "", fmt.Errorf("empty or incomplete response from Gemini API (finish reason: %s)", finishReason)
	}
	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response part type: %T", part)
	}
	return string(text), nil
}
