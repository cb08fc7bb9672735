// Package mempool is the Mempool collaborator (spec.md §6): pull_payload
// returns a possibly-empty payload for the leader to embed in its next
// proposal. Transaction content, fee ordering, and admission policy are
// explicitly out of scope (spec.md §1) — this package exists only to
// satisfy the collaborator interface shape, deliberately minimal (ground:
// mempool/ package shape, simplified — no blacklist/fee-market logic).
package mempool

import "sync"

// Mempool is the collaborator interface the leader pulls payloads from.
type Mempool interface {
	PullPayload(limit int) []byte
	Submit(payload []byte)
}

// InMemory is a trivial FIFO byte-payload queue, standing in for a real
// transaction pool (stdlib only — justified: this is a scope stand-in,
// not a real mempool implementation any pack library would target).
type InMemory struct {
	mu      sync.Mutex
	pending [][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Submit enqueues a payload for a future PullPayload call.
func (m *InMemory) Submit(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, payload)
}

// PullPayload returns the oldest pending payload, up to limit bytes
// total, or an empty payload if none is pending (spec.md §6: "Returns
// possibly empty payload").
func (m *InMemory) PullPayload(limit int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	payload := m.pending[0]
	if limit > 0 && len(payload) > limit {
		payload = payload[:limit]
	}
	m.pending = m.pending[1:]
	return payload
}
