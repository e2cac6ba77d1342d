package conversation

import "fmt"

// MsgRequired is the client-facing message for a missing user id or message.
const MsgRequired = "user_id and message are required"

// InvalidRequestError reports a turn rejected before any store or provider access.
type InvalidRequestError struct {
	Field string
}

func (e *InvalidRequestError) Error() string { return MsgRequired }

// ProviderError reports a failed or timed-out completion call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
