package windowing

import (
	"log/slog"

	"github.com/petasbytes/chatd/memory"
)

// GroupKind denotes the atomic unit type when trimming a log.
type GroupKind int

const (
	// GroupExchange is a user message followed by the replies answering it.
	GroupExchange GroupKind = iota
	// GroupOrphan is a run of replies with no preceding user message,
	// e.g. the head of a log that was trimmed by message count.
	GroupOrphan
)

// Group describes a contiguous span of messages [Start, End) in the input log.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into log
	End   int // exclusive index into log
}

// Len returns the number of messages in the group.
func (g Group) Len() int { return g.End - g.Start }

// GroupExchanges splits log into consecutive, non-overlapping groups.
// Invariants:
// - Every user message starts a new GroupExchange.
// - Non-user messages attach to the exchange opened by the nearest preceding user message.
// - Non-user messages before the first user message form a single GroupOrphan.
func GroupExchanges(log memory.Log) []Group {
	groups := make([]Group, 0, len(log)/2+1)
	for i := 0; i < len(log); {
		start := i
		kind := GroupOrphan
		if log[i].Role == memory.RoleUser {
			kind = GroupExchange
			i++
		}
		for i < len(log) && log[i].Role != memory.RoleUser {
			i++
		}
		if kind == GroupOrphan {
			slog.Debug("windowing: orphan group", "start", start, "end", i)
		}
		groups = append(groups, Group{Kind: kind, Start: start, End: i})
	}
	return groups
}
