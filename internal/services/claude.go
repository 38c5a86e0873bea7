package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/foxxcyber/voicecart/internal/logger"
)

const defaultClaudeModel = "claude-3-5-haiku-latest"

var ErrNoTextContent = errors.New("no text content in model response")

// TextGenerator produces a text completion for a system and user prompt
type TextGenerator interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// ClaudeClient is a TextGenerator backed by the Anthropic Messages API
type ClaudeClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       *logger.Logger
}

// NewClaudeClient creates a client for the given API key and model
func NewClaudeClient(apiKey, model string, log *logger.Logger) *ClaudeClient {
	if model == "" {
		model = defaultClaudeModel
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 512,
		log:       logger.OrNop(log).With("component", "claude"),
	}
}

// GenerateText sends one user turn and returns the first text block
func (c *ClaudeClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			c.log.Debug("model response",
				"model", c.model,
				"size", len(block.Text),
				"tokens_in", message.Usage.InputTokens,
				"tokens_out", message.Usage.OutputTokens,
			)
			return block.Text, nil
		}
	}
	return "", ErrNoTextContent
}

// stripCodeFence removes a surrounding ```json fence some models add
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
