// Package llm wraps the OpenAI client for advisory text review.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	openai "github.com/sashabaranov/go-openai"

	"sentinel_server/core/port/out"
)

const DefaultModel = "gpt-4o-mini"

// Client asks the model for a second opinion on flagged excerpts. The
// opinion is attached to the alert as a review note; it never changes
// the tier the lexicon scan resolved.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

type ClientConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewClient(apiKey string) *Client {
	return &Client{
		client:      openai.NewClient(apiKey),
		model:       DefaultModel,
		maxTokens:   512,
		temperature: 0.2,
	}
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	return &Client{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// completeJSON requests a JSON object response.
func (c *Client) completeJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "{}", nil
	}

	return resp.Choices[0].Message.Content, nil
}

const reviewSystemPrompt = `You are reviewing excerpts flagged by a keyword-based crisis filter for a recovery-support application.
Given the excerpt and the phrase that fired, judge whether the surrounding context supports genuine crisis risk.
Return a JSON object: {"assessment": "supports"|"ambiguous"|"contradicts", "summary": "<one sentence>", "confidence": 0.0-1.0}.
Be conservative: when unsure, answer "ambiguous".`

// ReviewFlaggedText implements out.ReviewerPort.
func (c *Client) ReviewFlaggedText(ctx context.Context, excerpt, matchedPhrase, category string) (*out.TextReview, error) {
	userPrompt := fmt.Sprintf("Flagged phrase: %q (category: %s)\n\nExcerpt:\n%s",
		matchedPhrase, category, excerpt)

	raw, err := c.completeJSON(ctx, reviewSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var review out.TextReview
	if err := json.Unmarshal([]byte(raw), &review); err != nil {
		return nil, fmt.Errorf("parse review response: %w", err)
	}

	review.Assessment = strings.ToLower(strings.TrimSpace(review.Assessment))
	switch review.Assessment {
	case "supports", "ambiguous", "contradicts":
	default:
		review.Assessment = "ambiguous"
	}
	if review.Confidence < 0 || review.Confidence > 1 {
		review.Confidence = 0
	}

	return &review, nil
}

var _ out.ReviewerPort = (*Client)(nil)
