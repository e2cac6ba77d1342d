package windowing

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/petasbytes/chatd/memory"
)

// MaxExchanges is the default number of user/assistant exchanges kept per user.
const MaxExchanges = 7

// Limit returns the message capacity for the given number of exchanges.
func Limit(exchanges int) int { return 2 * exchanges }

// Mode selects how Trim drops old messages.
type Mode string

const (
	// ModeExchange drops whole exchanges, oldest first, so the window always
	// starts at a user message.
	ModeExchange Mode = "exchange"
	// ModeMessage keeps exactly the last limit messages regardless of exchange boundaries.
	ModeMessage Mode = "message"
)

// ParseMode maps a configuration value to a Mode. Empty means ModeExchange.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeExchange:
		return ModeExchange, nil
	case ModeMessage:
		return ModeMessage, nil
	default:
		return "", fmt.Errorf("unknown window mode %q (want %q or %q)", s, ModeExchange, ModeMessage)
	}
}

// Stats summarizes one Trim call.
//
// Fields:
// - Before/After: message counts of the input log and the returned window.
// - Limit: the message capacity used.
// - DroppedMessages: Before minus After.
// - DroppedExchanges: groups that lost every message.
// - EstimatedTokens: TokenCounter estimate for the returned window.
// - NewestSplit: true when the newest exchange alone exceeded Limit and was cut by message.
type Stats struct {
	Before           int
	After            int
	Limit            int
	DroppedMessages  int
	DroppedExchanges int
	EstimatedTokens  int
	NewestSplit      bool
}

// Trim returns the newest suffix of log holding at most limit messages.
//
// Rules:
// - The result preserves order and never shares a backing array with log.
// - ModeExchange includes whole groups scanning newest to oldest while the total fits.
// - If the newest group alone exceeds limit, its last limit messages are kept and NewestSplit is set.
// - ModeMessage keeps log[len(log)-limit:].
// - limit <= 0 yields an empty window.
func Trim(log memory.Log, limit int, mode Mode, c TokenCounter) (memory.Log, Stats) {
	if c == nil {
		c = HeuristicCounter{}
	}
	stats := Stats{Before: len(log), Limit: limit}

	if limit <= 0 || len(log) == 0 {
		stats.DroppedMessages = len(log)
		stats.DroppedExchanges = len(GroupExchanges(log))
		return memory.Log{}, stats
	}

	groups := GroupExchanges(log)
	start := 0
	switch mode {
	case ModeMessage:
		if len(log) > limit {
			start = len(log) - limit
		}
	default:
		start, stats.NewestSplit = exchangeStart(log, groups, limit)
	}

	window := log[start:].Clone()
	for _, g := range groups {
		if g.End <= start {
			stats.DroppedExchanges++
		}
	}
	stats.After = len(window)
	stats.DroppedMessages = stats.Before - stats.After
	stats.EstimatedTokens = CountLog(c, window)

	if stats.DroppedMessages > 0 {
		slog.Debug("windowing: trimmed",
			"mode", string(mode),
			"limit", limit,
			"before", stats.Before,
			"after", stats.After,
			"dropped_exchanges", stats.DroppedExchanges,
			"newest_split", stats.NewestSplit)
	}
	return window, stats
}

// exchangeStart returns the index of the first message kept in exchange mode.
func exchangeStart(log memory.Log, groups []Group, limit int) (int, bool) {
	if len(log) <= limit {
		return 0, false
	}
	total := 0
	startIdx := len(groups) // exclusive sentinel; lowered when a group is included
	for gi := len(groups) - 1; gi >= 0; gi-- {
		n := groups[gi].Len()
		if total+n > limit {
			break
		}
		total += n
		startIdx = gi
	}
	if startIdx == len(groups) {
		// Newest group alone is over capacity: keep its tail.
		slog.Debug("windowing: newest group over limit", "limit", limit, "size", groups[len(groups)-1].Len())
		return len(log) - limit, true
	}
	return groups[startIdx].Start, false
}
