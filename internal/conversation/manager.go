package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petasbytes/chatd/internal/provider"
	"github.com/petasbytes/chatd/internal/telemetry"
	"github.com/petasbytes/chatd/internal/windowing"
	"github.com/petasbytes/chatd/memory"
)

const defaultProviderTimeout = 60 * time.Second

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	Model        string
	SystemPrompt string

	// MaxExchanges bounds the window at 2*MaxExchanges messages.
	MaxExchanges int
	Mode         windowing.Mode
	// RetrimAfterReply trims again after the assistant reply is appended,
	// so the persisted log never exceeds the window.
	RetrimAfterReply bool

	ProviderTimeout time.Duration
	Counter         windowing.TokenCounter
	Logger          *slog.Logger
}

// Result is the outcome of a successful turn.
type Result struct {
	Reply   string     `json:"reply"`
	History memory.Log `json:"history"`
}

// Manager orchestrates chat turns over a Store and a Completer.
type Manager struct {
	store    memory.Store
	provider provider.Completer
	opts     Options
	log      *slog.Logger

	users    keyedMutex
	commitMu sync.Mutex
}

// NewManager returns a Manager using store for persistence and c for replies.
func NewManager(store memory.Store, c provider.Completer, opts Options) *Manager {
	if opts.MaxExchanges <= 0 {
		opts.MaxExchanges = windowing.MaxExchanges
	}
	if opts.Mode == "" {
		opts.Mode = windowing.ModeExchange
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	if opts.Model == "" {
		opts.Model = provider.DefaultModel(provider.Kind(c.Name()))
	}
	if opts.Counter == nil {
		opts.Counter = windowing.HeuristicCounter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		provider: c,
		opts:     opts,
		log:      logger.With("component", "conversation"),
	}
}

// Limit returns the window capacity in messages.
func (m *Manager) Limit() int { return windowing.Limit(m.opts.MaxExchanges) }

// HandleTurn runs one user turn and returns the reply with the user's updated log.
//
// Errors: *InvalidRequestError for empty input, *memory.CorruptStateError when
// history cannot be read, *ProviderError when the completion fails, and
// *memory.PersistenceError when the updated history cannot be written.
func (m *Manager) HandleTurn(ctx context.Context, userID, message string) (Result, error) {
	switch {
	case userID == "":
		return Result{}, &InvalidRequestError{Field: "user_id"}
	case message == "":
		return Result{}, &InvalidRequestError{Field: "message"}
	}

	ctx, turnID := telemetry.EnsureTurnID(ctx)
	log := m.log.With("turn_id", turnID, "user_id", userID)
	start := time.Now()
	failed := func(stage string, err error) (Result, error) {
		log.Error("turn failed", "stage", stage, "err", err)
		telemetry.Emit(telemetry.EventTurnFailed, map[string]any{
			"turn_id":     turnID,
			"stage":       stage,
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return Result{}, err
	}

	unlock, err := m.users.Lock(ctx, userID)
	if err != nil {
		return failed("lock", err)
	}
	defer unlock()

	history, err := m.store.Load(ctx)
	if err != nil {
		return failed("load", err)
	}

	conv := append(history[userID].Clone(), memory.UserMessage(message))
	window, stats := windowing.Trim(conv, m.Limit(), m.opts.Mode, m.opts.Counter)

	telemetry.Emit(telemetry.EventWindowPrepared, map[string]any{
		"turn_id":           turnID,
		"model":             m.opts.Model,
		"mode":              string(m.opts.Mode),
		"limit":             stats.Limit,
		"before":            stats.Before,
		"after":             stats.After,
		"dropped_messages":  stats.DroppedMessages,
		"dropped_exchanges": stats.DroppedExchanges,
		"estimated_tokens":  stats.EstimatedTokens,
		"newest_split":      stats.NewestSplit,
	})
	telemetry.EmitLocalFeatures(ctx, message, window)
	log.Debug("window prepared", "before", stats.Before, "after", stats.After, "dropped", stats.DroppedMessages)

	pctx, cancel := context.WithTimeout(ctx, m.opts.ProviderTimeout)
	reply, err := m.provider.Complete(pctx, provider.Request{
		Model:    m.opts.Model,
		System:   m.opts.SystemPrompt,
		Messages: window,
	})
	cancel()
	if err != nil {
		return failed("provider", &ProviderError{Provider: m.provider.Name(), Err: err})
	}

	updated := append(window, memory.AssistantMessage(reply.Text))
	if m.opts.RetrimAfterReply {
		updated, _ = windowing.Trim(updated, m.Limit(), m.opts.Mode, m.opts.Counter)
	}

	// The reply exists now; a client that went away must not lose the turn.
	if err := m.commit(context.WithoutCancel(ctx), userID, updated); err != nil {
		return failed("save", err)
	}

	log.Info("turn completed",
		"messages", len(updated),
		"input_tokens", reply.InputTokens,
		"output_tokens", reply.OutputTokens,
		"duration", time.Since(start))
	telemetry.Emit(telemetry.EventTurnCompleted, map[string]any{
		"turn_id":       turnID,
		"provider":      m.provider.Name(),
		"messages":      len(updated),
		"input_tokens":  reply.InputTokens,
		"output_tokens": reply.OutputTokens,
		"duration_ms":   time.Since(start).Milliseconds(),
	})

	return Result{Reply: reply.Text, History: updated.Clone()}, nil
}

// commit writes log for userID into the latest persisted history. Reloading
// under commitMu keeps turns of other users that finished in the meantime.
func (m *Manager) commit(ctx context.Context, userID string, log memory.Log) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	latest, err := m.store.Load(ctx)
	if err != nil {
		return &memory.PersistenceError{Source: "reload before save", Err: err}
	}
	if latest == nil {
		latest = memory.History{}
	}
	latest[userID] = log
	return m.store.Save(ctx, latest)
}
