package telemetry

import (
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event names emitted by the service.
const (
	EventWindowPrepared = "window_prepared"
	EventTurnCompleted  = "turn_completed"
	EventTurnFailed     = "turn_failed"
	EventLocalFeatures  = "local_features"
)

// Concurrent turns append to the same file.
var writeMu sync.Mutex

// Emit appends one JSON line to <ArtifactsDir>/events.jsonl when observation is
// enabled, adding "time" (RFC3339Nano, UTC) and "event" to fields. Failures are
// logged and never reach the caller.
func Emit(name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}

	// Shallow copy; callers' maps are not mutated.
	m := make(map[string]any, len(fields)+2)
	maps.Copy(m, fields)
	m["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	m["event"] = name

	b, err := json.Marshal(m)
	if err != nil {
		slog.Warn("telemetry: marshal event", "event", name, "err", err)
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	dir := ArtifactsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("telemetry: create artifacts dir", "dir", dir, "err", err)
		return
	}

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("telemetry: open events file", "path", path, "err", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		slog.Warn("telemetry: write event", "path", path, "err", err)
	}
}
