package telemetry

import (
	"os"
)

var (
	observeEnabled  bool
	featuresEnabled bool
)

func init() {
	// Read once at process start. Mid-run environment changes have no effect,
	// except the explicit test overrides below.
	observeEnabled = os.Getenv("CHATD_OBSERVE_JSON") == "1"

	// Local features: default to the observe setting when CHATD_LOCAL_FEATURES is unset; honour explicit 0/1.
	if v, ok := os.LookupEnv("CHATD_LOCAL_FEATURES"); ok {
		featuresEnabled = (v == "1")
	} else {
		featuresEnabled = observeEnabled
	}
}

// ObserveEnabled reports whether JSONL emission was enabled at startup.
func ObserveEnabled() bool {
	// Preserve startup-evaluated default, but allow tests to enable mid-run via env override.
	if os.Getenv("CHATD_OBSERVE_JSON") == "1" {
		return true
	}
	return observeEnabled
}

// FeaturesEnabled reports whether per-turn message size features are emitted.
func FeaturesEnabled() bool {
	if os.Getenv("CHATD_LOCAL_FEATURES") == "1" {
		return true
	}
	return featuresEnabled
}

// ArtifactsDir is where events.jsonl is written. Defaults to .chatd in the working directory.
func ArtifactsDir() string {
	if v := os.Getenv("CHATD_ARTIFACTS_DIR"); v != "" {
		return v
	}
	return ".chatd"
}
