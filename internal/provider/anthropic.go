package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/petasbytes/chatd/memory"
)

const DefaultAnthropicModel = string(anthropic.ModelClaude3_7SonnetLatest)

const defaultMaxTokens = 1024

// Anthropic completes through the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropic returns a client for the Messages API. An empty apiKey falls
// back to ANTHROPIC_API_KEY, as the SDK does. SDK retries are disabled.
func NewAnthropic(apiKey, baseURL string, maxTokens int64, opts ...option.RequestOption) (*Anthropic, error) {
	base := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		base = append(base, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(append(base, opts...)...),
		maxTokens: maxTokens,
	}, nil
}

func (a *Anthropic) Name() string { return string(KindAnthropic) }

func (a *Anthropic) Complete(ctx context.Context, req Request) (Reply, error) {
	if err := validate(req); err != nil {
		return Reply{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: a.maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var parts []string
	for _, b := range msg.Content {
		if tb, ok := b.AsAny().(anthropic.TextBlock); ok && tb.Text != "" {
			parts = append(parts, tb.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func toAnthropicMessages(log memory.Log) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(log))
	for _, m := range log {
		if m.Role == memory.RoleUser {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

var _ Completer = (*Anthropic)(nil)
