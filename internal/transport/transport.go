package transport

import (
	"context"
	"time"
)

// Transport is the contract every agent and service uses to exchange
// Messages: send and a blocking receive with timeout (§4.1). The Transport
// does not deduplicate — that is the Runtime's responsibility (§4.2) — and
// it guarantees FIFO delivery only within a single (sender, recipient) pair.
type Transport interface {
	// Send delivers a message, preferring the broker-backed primary path
	// and transparently falling back to the append-only log on failure.
	// Send returns an error only when neither path can accept the message.
	Send(ctx context.Context, msg *Message) error

	// Receive blocks for up to timeout waiting for the next message
	// addressed to agentID (directly or via broadcast). Returns a nil
	// message, nil error on timeout — that is not a failure.
	Receive(ctx context.Context, agentID string, timeout time.Duration) (*Message, error)

	// Close releases any held connections or file handles.
	Close() error
}
