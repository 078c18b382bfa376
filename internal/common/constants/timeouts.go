// Package constants centralizes timeout and sizing defaults shared across
// the coordination core so that callers don't re-derive them from config
// plumbing in contexts (like tests) where a full Config isn't available.
package constants

import "time"

const (
	// DefaultReceiveTimeout is how long Transport.Receive blocks by
	// default before returning a nil message.
	DefaultReceiveTimeout = 5 * time.Second

	// DefaultIdleThreshold is the number of consecutive empty receives
	// before the Runtime calls on_idle.
	DefaultIdleThreshold = 10

	// MinDedupSetSize is the minimum capacity of the per-agent bounded
	// LRU dedup set.
	MinDedupSetSize = 10000

	// DefaultStuckTaskThreshold is how long a task may sit in ASSIGNED
	// or EXECUTING without a history update before it is considered stuck.
	DefaultStuckTaskThreshold = 5 * time.Minute

	// DefaultTerminalRetention is how long terminal tasks remain
	// guaranteed-retrievable by id before they may be truncated.
	DefaultTerminalRetention = 30 * 24 * time.Hour

	// DefaultBridgeTimeout is the per-call timeout for Service Bridge
	// HTTP calls.
	DefaultBridgeTimeout = 5 * time.Second

	// DefaultBridgeRetries is the number of retries after the first
	// attempt for a transient Service Bridge call failure.
	DefaultBridgeRetries = 2

	// DefaultShutdownGrace is the bounded grace period given to
	// in-flight handlers to reach a suspension point during shutdown.
	DefaultShutdownGrace = 10 * time.Second

	// DefaultAgentOfflineWindow is how long an agent may go unseen
	// before the Orchestrator marks it OFFLINE.
	DefaultAgentOfflineWindow = 2 * time.Minute

	// BrokerStatusCacheTTL bounds how often the Transport re-probes an
	// unreachable broker before trying the primary path again.
	BrokerStatusCacheTTL = 3 * time.Second
)
