package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// Claude translates via the Anthropic Messages API.
type Claude struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewClaude builds a Claude translator from config.
func NewClaude(cfg config.Translate, logger *zap.Logger) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("translate.api_key is required for the claude provider")
	}
	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Claude{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Name implements Translator.
func (c *Claude) Name() string { return "claude" }

// Translate implements Translator.
func (c *Claude) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(text, targetLang))),
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	out := messageText(resp.Content)
	if out == "" {
		return "", fmt.Errorf("claude returned no text content")
	}

	c.logger.Debug("claude translation completed",
		zap.Int("input_len", len(text)),
		zap.Int("output_len", len(out)))
	return out, nil
}

// messageText concatenates the text blocks of a response, ignoring tool
// use and other block kinds.
func messageText(blocks []anthropic.ContentBlockUnion) string {
	var out strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String()
}
