// Package conversation runs a single chat turn against a bounded per-user window.
//
// Flow:
//
//	load history -> append user message -> trim window -> provider call
//	  -> append assistant reply -> save history -> return reply + window
//
// Invariants:
//   - The provider never sees more than 2*MaxExchanges messages.
//   - A failed turn persists nothing.
//   - Turns for the same user are serialized; turns for different users may
//     overlap and never overwrite each other's logs.
package conversation
