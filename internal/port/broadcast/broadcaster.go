// Package broadcast defines the port used to push queue and task events to
// live subscribers such as the WebSocket hub.
package broadcast

import "context"

// Broadcaster delivers an event to every current subscriber. Delivery is
// best effort; slow subscribers may miss events.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
