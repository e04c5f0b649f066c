package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// featureScoped is implemented by payloads that belong to one feature.
type featureScoped interface {
	FeatureID() string
}

// BroadcastEvent marshals a typed event and broadcasts it. Payloads that name
// their feature only reach clients watching that feature.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	msg := Message{Type: eventType, Payload: json.RawMessage(data)}
	if fs, ok := payload.(featureScoped); ok {
		msg.Feature = fs.FeatureID()
	}
	h.Broadcast(ctx, msg)
}
