// Package provider adapts third-party completion APIs to a single
// "generate a reply from ordered role/content context" contract.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petasbytes/chatd/memory"
)

// Request is one completion call.
type Request struct {
	Model    string
	System   string
	Messages memory.Log
}

// Reply is the generated text plus optional usage counts.
type Reply struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Completer generates a reply for an ordered conversation context.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req Request) (Reply, error)
}

// ErrEmptyReply is returned when the provider answers without any text.
var ErrEmptyReply = errors.New("provider returned an empty reply")

// Kind names a Completer implementation.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindStatic    Kind = "static"
)

// Config selects and configures a Completer.
type Config struct {
	Kind        Kind
	APIKey      string
	BaseURL     string
	MaxTokens   int64
	StaticReply string
}

// New builds the Completer named by cfg.Kind.
func New(cfg Config) (Completer, error) {
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case KindOpenAI, "":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL)
	case KindAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.BaseURL, cfg.MaxTokens)
	case KindStatic:
		return NewStatic(cfg.StaticReply), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Kind)
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(kind Kind) string {
	switch kind {
	case KindAnthropic:
		return DefaultAnthropicModel
	case KindStatic:
		return "static"
	default:
		return DefaultOpenAIModel
	}
}

func validate(req Request) error {
	if len(req.Messages) == 0 {
		return errors.New("at least one message must be provided")
	}
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("model must be provided")
	}
	return nil
}
