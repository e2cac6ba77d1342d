// Package memory persists per-user conversation logs.
//
// Persistence model:
//   - The whole History (user id -> Log) is the unit of persistence. Load reads it,
//     Save rewrites it; no per-user partial writes are exposed.
//   - Only role + content are stored.
//   - Three backends share the Store contract: a single JSON file (default),
//     bbolt, and SQLite.
package memory
