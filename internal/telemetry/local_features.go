package telemetry

import (
	"context"

	"github.com/petasbytes/chatd/internal/metrics"
	"github.com/petasbytes/chatd/memory"
)

// EmitLocalFeatures records size features of the incoming message and the
// window sent to the provider. Raw text is never written.
func EmitLocalFeatures(ctx context.Context, message string, window memory.Log) {
	if !(FeaturesEnabled() && ObserveEnabled()) {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	f := metrics.CountFeatures(message)
	w := metrics.CountLogFeatures(window)
	Emit(EventLocalFeatures, map[string]any{
		"turn_id":          turnID,
		"features_version": "2",
		"user": map[string]any{
			"bytes": f.Bytes,
			"runes": f.Runes,
			"words": f.Words,
			"lines": f.Lines,
		},
		"window": map[string]any{
			"messages":        w.Messages,
			"user_runes":      w.UserRunes,
			"assistant_runes": w.AssistantRunes,
		},
	})
}
