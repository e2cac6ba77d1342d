package windowing_test

import (
	"fmt"

	"github.com/petasbytes/chatd/internal/windowing"
	"github.com/petasbytes/chatd/memory"
)

// U is a user message constructor.
func U(text string) memory.Message { return memory.UserMessage(text) }

// A is an assistant message constructor.
func A(text string) memory.Message { return memory.AssistantMessage(text) }

// exchanges builds n complete user/assistant exchanges numbered from 1.
func exchanges(n int) memory.Log {
	log := make(memory.Log, 0, 2*n)
	for i := 1; i <= n; i++ {
		log = append(log, U(fmt.Sprintf("q%d", i)), A(fmt.Sprintf("a%d", i)))
	}
	return log
}

// groupsEqual is a small utility used by grouping tests.
func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
