package windowing

import (
	"unicode/utf8"

	"github.com/petasbytes/chatd/memory"
)

// TokenCounter estimates input-token cost for messages or groups.
type TokenCounter interface {
	CountMessage(m memory.Message) int
	CountGroup(g Group, all memory.Log) int
}

// HeuristicCounter is the default deterministic estimator: rune count of the
// content plus a fixed per-message overhead for role and framing.
type HeuristicCounter struct{}

// Fixed per-message overhead for deterministic counts; changing this requires updating the guard test.
const messageOverhead = 4

func (HeuristicCounter) CountMessage(m memory.Message) int {
	return utf8.RuneCountInString(m.Content) + messageOverhead
}

func (h HeuristicCounter) CountGroup(g Group, all memory.Log) int {
	total := 0
	for i := g.Start; i < g.End && i < len(all); i++ {
		total += h.CountMessage(all[i])
	}
	return total
}

// CountLog sums CountMessage over every message in log.
func CountLog(c TokenCounter, log memory.Log) int {
	total := 0
	for _, m := range log {
		total += c.CountMessage(m)
	}
	return total
}
