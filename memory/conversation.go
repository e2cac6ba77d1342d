package memory

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single persisted chat message. Treat values as immutable.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage returns a user message with the given content.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant message with the given content.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Log is one user's ordered conversation, oldest first.
type Log []Message

// Clone returns a copy of l that shares no backing array with it.
// A nil log clones to an empty, non-nil log so it encodes as [] rather than null.
func (l Log) Clone() Log {
	out := make(Log, len(l))
	copy(out, l)
	return out
}

// History maps user ids to their conversation logs.
type History map[string]Log

// Clone returns a deep copy of h.
func (h History) Clone() History {
	out := make(History, len(h))
	for k, v := range h {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether a and b hold the same users with identical logs.
// A missing user and a user with an empty log are not equal.
func Equal(a, b History) bool {
	if len(a) != len(b) {
		return false
	}
	for k, la := range a {
		lb, ok := b[k]
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if la[i] != lb[i] {
				return false
			}
		}
	}
	return true
}

// validate checks the shape of a decoded history.
func validate(h History) error {
	for user, log := range h {
		for i, m := range log {
			if !m.Role.Valid() {
				return &shapeError{user: user, index: i, role: m.Role}
			}
		}
	}
	return nil
}
