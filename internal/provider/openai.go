package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/petasbytes/chatd/memory"
)

// DefaultOpenAIModel matches the model the service has always used.
const DefaultOpenAIModel = "gpt-3.5-turbo"

// OpenAI completes through the OpenAI Chat Completions API.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI returns a Chat Completions client. An empty apiKey falls back to
// OPENAI_API_KEY, as the SDK does. SDK retries are disabled.
func NewOpenAI(apiKey, baseURL string, opts ...option.RequestOption) (*OpenAI, error) {
	base := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		base = append(base, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(append(base, opts...)...)}, nil
}

func (o *OpenAI) Name() string { return string(KindOpenAI) }

func (o *OpenAI) Complete(ctx context.Context, req Request) (Reply, error) {
	if err := validate(req); err != nil {
		return Reply{}, err
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, toOpenAIMessages(req.Messages)...)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("openai chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrEmptyReply
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{
		Text:         text,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func toOpenAIMessages(log memory.Log) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(log))
	for _, m := range log {
		if m.Role == memory.RoleUser {
			out = append(out, openai.UserMessage(m.Content))
		} else {
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}

var _ Completer = (*OpenAI)(nil)
