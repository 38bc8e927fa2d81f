package replication

import (
	"context"
	"sync"

	"replicator/internal/models"
)

// AccountRegistry is an in-memory AccountStateProvider. The outer system
// pushes balance/position snapshots into it; the engine reads them at
// validation time. Followers without a pushed snapshot get the fallback.
type AccountRegistry struct {
	mu       sync.RWMutex
	states   map[string]models.AccountState
	fallback models.AccountState
}

func NewAccountRegistry(fallback models.AccountState) *AccountRegistry {
	return &AccountRegistry{
		states:   map[string]models.AccountState{},
		fallback: fallback,
	}
}

func (r *AccountRegistry) Set(followerRelationshipID string, state models.AccountState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[followerRelationshipID] = state
}

func (r *AccountRegistry) GetAccountState(ctx context.Context, followerRelationshipID string) (models.AccountState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if state, ok := r.states[followerRelationshipID]; ok {
		return state, nil
	}
	return r.fallback, nil
}
