package platform

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"replicator/internal/models"
)

// PaperAdapter simulates a destination for dry runs and local development.
// It fills at the signal price after a configurable latency, failing a
// configurable fraction of calls.
type PaperAdapter struct {
	Name        string
	BaseLatency time.Duration
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPaperAdapter(name string, baseLatency time.Duration, failureRate float64, seed int64) *PaperAdapter {
	if name == "" {
		name = "paper"
	}
	if baseLatency <= 0 {
		baseLatency = 20 * time.Millisecond
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperAdapter{
		Name:        name,
		BaseLatency: baseLatency,
		FailureRate: failureRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (a *PaperAdapter) Platform() string {
	return a.Name
}

func (a *PaperAdapter) Execute(ctx context.Context, dest models.Destination, signal models.TradeSignal) (models.ExecutionResult, error) {
	a.mu.Lock()
	// Jitter up to half the base latency keeps runs non-uniform.
	delay := a.BaseLatency + time.Duration(a.rng.Int63n(int64(a.BaseLatency)/2+1))
	fail := a.FailureRate > 0 && a.rng.Float64() < a.FailureRate
	a.mu.Unlock()

	select {
	case <-ctx.Done():
		return models.ExecutionResult{}, ctx.Err()
	case <-time.After(delay):
	}

	if fail {
		return models.ExecutionResult{}, fmt.Errorf("paper venue rejected order for %s", signal.Symbol)
	}

	return models.ExecutionResult{
		Success:       true,
		DestinationID: dest.ID,
		OrderID:       uuid.NewString(),
		FilledQty:     signal.Quantity,
		FilledPrice:   signal.Price,
		Fee:           signal.Notional().Mul(decimal.NewFromFloat(0.0005)),
		Timestamp:     time.Now().UTC(),
	}, nil
}
