// Package authz holds the caller-identity predicates checked before any
// vault mutation. It is small but load-bearing: these checks are the only
// thing preventing an arbitrary caller from forging a heartbeat, vetoing a
// transfer, or draining funds.
package authz

import (
	"sync"

	"github.com/sentinel-labs/sentinel/pkg/contracts"
)

// IsOwner reports whether caller is the record's owner.
func IsOwner(caller string, r *contracts.VaultRecord) bool {
	return caller != "" && caller == r.OwnerID
}

// IsBeneficiary reports whether caller is the record's beneficiary.
func IsBeneficiary(caller string, r *contracts.VaultRecord) bool {
	return caller != "" && caller == r.BeneficiaryID
}

// AgentSet is the statically configured set of identities allowed to call
// the agent-gated operations (yield resolution, liveness auto-extend).
type AgentSet struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
}

// NewAgentSet creates a set from the configured agent identities.
func NewAgentSet(ids ...string) *AgentSet {
	s := &AgentSet{allowed: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.allowed[id] = struct{}{}
		}
	}
	return s
}

// Allow adds an agent identity. Idempotent.
func (s *AgentSet) Allow(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[id] = struct{}{}
}

// IsAuthorizedAgent reports whether caller is a configured agent identity.
func (s *AgentSet) IsAuthorizedAgent(caller string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowed[caller]
	return ok
}
