package platform

import (
	"context"
	"fmt"
	"sync"

	"replicator/internal/models"
)

// Adapter executes one trade signal against destinations of one platform
// family. Implementations own their wire protocol and idempotency; the engine
// only sees this contract.
type Adapter interface {
	// Platform names the destination family the adapter serves, e.g. "binance".
	Platform() string

	// Execute places the signal on the destination. A returned error means the
	// call itself failed; a result with Success=false means the venue rejected
	// it. Execute must honor ctx cancellation.
	Execute(ctx context.Context, dest models.Destination, signal models.TradeSignal) (models.ExecutionResult, error)
}

// Registry resolves adapters by platform name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(a Adapter) error {
	if a == nil || a.Platform() == "" {
		return fmt.Errorf("adapter missing platform name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Platform()]; ok {
		return fmt.Errorf("adapter already registered: %s", a.Platform())
	}
	r.adapters[a.Platform()] = a
	return nil
}

func (r *Registry) Resolve(platformName string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platformName]
	return a, ok
}
