package sink

import (
	"context"

	"github.com/patze/bridge/internal/telemetry"
)

// Sink is a destination for telemetry envelopes (the control-plane
// ingestion API, or an analytics store). Implementations must be safe for
// concurrent use; the bridge fans envelopes out from one poller goroutine
// per machine.
type Sink interface {
	Send(ctx context.Context, e telemetry.Envelope) error
}

// Closer is implemented by sinks that hold connections.
type Closer interface {
	Close() error
}
