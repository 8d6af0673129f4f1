package peer

import (
	"context"

	"peerlink/pkg/types"
)

// Signaler carries session descriptions and ICE candidates between the
// two peers of a session. The orchestrator does not care whether the
// transport underneath is the pull relay, the push hub, or an in-process
// pair; it only posts outbound signals and receives inbound ones.
type Signaler interface {
	// Post sends one signal to the peer. The payload is JSON-marshaled
	// by the implementation.
	Post(ctx context.Context, signalType types.SignalType, payload any) error

	// Start begins delivering inbound signals to handle. Delivery is
	// sequential per signaler: handle is never called concurrently.
	// Delivery is at-least-once; callers must tolerate duplicates.
	Start(ctx context.Context, handle func(types.SignalRecord)) error

	// Stop ends delivery and releases transport resources. Safe to call
	// more than once and before Start.
	Stop()
}
