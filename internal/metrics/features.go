package metrics

import (
	"strings"
	"unicode/utf8"

	"github.com/petasbytes/chatd/memory"
)

// Features holds basic local text features derived from an input string.
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int
}

// CountFeatures computes and returns byte, rune, word, and line counts for the input string.
func CountFeatures(s string) Features {
	return Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
		Lines: countLines(s),
	}
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}

// LogFeatures summarizes a conversation window by role.
type LogFeatures struct {
	Messages       int
	UserRunes      int
	AssistantRunes int
}

// CountLogFeatures sums rune counts per role across log.
func CountLogFeatures(log memory.Log) LogFeatures {
	f := LogFeatures{Messages: len(log)}
	for _, m := range log {
		n := utf8.RuneCountInString(m.Content)
		switch m.Role {
		case memory.RoleUser:
			f.UserRunes += n
		case memory.RoleAssistant:
			f.AssistantRunes += n
		}
	}
	return f
}
