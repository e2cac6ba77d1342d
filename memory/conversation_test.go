package memory_test

import (
	"testing"

	"github.com/petasbytes/chatd/memory"
)

func TestLogClone_Independent(t *testing.T) {
	in := memory.Log{memory.UserMessage("hi"), memory.AssistantMessage("hello")}
	out := in.Clone()
	out[0] = memory.UserMessage("changed")
	if in[0].Content != "hi" {
		t.Fatalf("clone shares backing array with source: %+v", in)
	}
}

func TestLogClone_NilBecomesEmpty(t *testing.T) {
	var l memory.Log
	out := l.Clone()
	if out == nil || len(out) != 0 {
		t.Fatalf("want empty non-nil log, got %#v", out)
	}
}

func TestHistoryClone_Deep(t *testing.T) {
	h := memory.History{"u1": {memory.UserMessage("a")}}
	c := h.Clone()
	c["u1"][0] = memory.UserMessage("b")
	c["u2"] = memory.Log{}
	if h["u1"][0].Content != "a" {
		t.Fatalf("history clone is shallow")
	}
	if _, ok := h["u2"]; ok {
		t.Fatalf("clone shares map with source")
	}
}

func TestEqual(t *testing.T) {
	base := memory.History{"u1": {memory.UserMessage("a"), memory.AssistantMessage("b")}}
	tests := []struct {
		name  string
		other memory.History
		want  bool
	}{
		{"same", memory.History{"u1": {memory.UserMessage("a"), memory.AssistantMessage("b")}}, true},
		{"different content", memory.History{"u1": {memory.UserMessage("a"), memory.AssistantMessage("c")}}, false},
		{"different role", memory.History{"u1": {memory.UserMessage("a"), memory.UserMessage("b")}}, false},
		{"shorter", memory.History{"u1": {memory.UserMessage("a")}}, false},
		{"other user", memory.History{"u2": {memory.UserMessage("a"), memory.AssistantMessage("b")}}, false},
		{"extra user", memory.History{"u1": {memory.UserMessage("a"), memory.AssistantMessage("b")}, "u2": nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := memory.Equal(base, tt.other); got != tt.want {
				t.Fatalf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []memory.Role{memory.RoleUser, memory.RoleAssistant} {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	for _, r := range []memory.Role{"", "system", "tool", "USER"} {
		if r.Valid() {
			t.Fatalf("%q should be invalid", r)
		}
	}
}
