// Package registry implements the Orchestrator's Agent Registry: the
// Agent Descriptor store described in §3, populated by agent_online
// INFORM messages and heartbeats (§4.4).
package registry

import (
	"sync"
	"time"
)

// Status is an agent's current availability.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
	StatusBlocked   Status = "BLOCKED"
	StatusOffline   Status = "OFFLINE"
)

// Descriptor is a registry entry for a running agent (§3). Roles are an
// open enumeration configured at startup, not a closed Go type.
type Descriptor struct {
	AgentID      string
	Role         string
	Capabilities []string
	Status       Status
	LastSeenAt   time.Time
	// assignedCount backs the Orchestrator's least-recently-assigned
	// tiebreak (§4.4 "pick deterministically").
	assignedCount int
}

// Registry tracks every known agent, grounded on the teacher's
// agent/registry sync.Mutex-guarded map pattern, restructured around
// role/capability descriptors instead of Docker image configuration.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*Descriptor
}

// New creates an empty Agent Registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*Descriptor)}
}

// Register records or refreshes an agent's descriptor, called on
// agent_online INFORM (§4.4 "Agent registration").
func (r *Registry) Register(agentID, role string, capabilities []string) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.agents[agentID]
	if !ok {
		d = &Descriptor{AgentID: agentID}
		r.agents[agentID] = d
	}
	d.Role = role
	d.Capabilities = capabilities
	d.Status = StatusAvailable
	d.LastSeenAt = time.Now().UTC()
	return d
}

// Heartbeat updates LastSeenAt and, if the agent was OFFLINE, restores it
// to AVAILABLE.
func (r *Registry) Heartbeat(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.agents[agentID]
	if !ok {
		return
	}
	d.LastSeenAt = time.Now().UTC()
	if d.Status == StatusOffline {
		d.Status = StatusAvailable
	}
}

// SetStatus explicitly sets an agent's status (e.g. BUSY while executing,
// or OFFLINE on an explicit offline message).
func (r *Registry) SetStatus(agentID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.agents[agentID]; ok {
		d.Status = status
	}
}

// MarkOfflineIfStale transitions any agent unseen within window to
// OFFLINE, making it ineligible for new assignments (§4.4).
func (r *Registry) MarkOfflineIfStale(window time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)
	var newlyOffline []string
	for id, d := range r.agents {
		if d.Status != StatusOffline && d.LastSeenAt.Before(cutoff) {
			d.Status = StatusOffline
			newlyOffline = append(newlyOffline, id)
		}
	}
	return newlyOffline
}

// SelectForRole picks an AVAILABLE agent of role, deterministically
// preferring the one assigned least recently (fewest total assignments,
// ties broken by agent_id) per §4.4. Returns nil if none is AVAILABLE.
func (r *Registry) SelectForRole(role string) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Descriptor
	for _, d := range r.agents {
		if d.Role != role || d.Status != StatusAvailable {
			continue
		}
		if best == nil ||
			d.assignedCount < best.assignedCount ||
			(d.assignedCount == best.assignedCount && d.AgentID < best.AgentID) {
			best = d
		}
	}
	if best != nil {
		best.assignedCount++
	}
	return best
}

// Get returns the descriptor for agentID, or nil if unknown.
func (r *Registry) Get(agentID string) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.agents[agentID]; ok {
		cp := *d
		return &cp
	}
	return nil
}

// List returns a snapshot of every known agent.
func (r *Registry) List() []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Descriptor, 0, len(r.agents))
	for _, d := range r.agents {
		cp := *d
		out = append(out, &cp)
	}
	return out
}
