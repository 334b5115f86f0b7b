package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You narrate a turn-based dice dungeon crawler. Given the JSON outcome of " +
	"one combat action, reply with one or two vivid sentences in English describing it. " +
	"Never contradict the outcome: a miss misses, a kill kills. No dice numbers, no markdown."

// AnthropicConfig configures an AnthropicNarrator.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// AnthropicNarrator asks the Anthropic Messages API to describe an action.
type AnthropicNarrator struct {
	client  anthropic.Client
	model   anthropic.Model
	max     int64
	timeout time.Duration
}

// NewAnthropicNarrator creates an AnthropicNarrator. Extra request options are
// appended after the API key, so tests may point the client at a fake server.
//
// Precondition: cfg.Model must be non-empty and cfg.MaxTokens > 0.
func NewAnthropicNarrator(cfg AnthropicConfig, opts ...option.RequestOption) (*AnthropicNarrator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic narrator: model must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("anthropic narrator: max tokens must be > 0, got %d", cfg.MaxTokens)
	}
	all := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &AnthropicNarrator{
		client:  anthropic.NewClient(all...),
		model:   anthropic.Model(cfg.Model),
		max:     cfg.MaxTokens,
		timeout: cfg.Timeout,
	}, nil
}

// Narrate implements Narrator.
func (n *AnthropicNarrator) Narrate(ctx context.Context, req Request) (string, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding narrative request: %w", err)
	}
	msg, err := n.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     n.model,
		MaxTokens: n.max,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(payload))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic narrate: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoNarration
	}
	return text, nil
}
