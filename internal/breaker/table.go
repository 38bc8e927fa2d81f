package breaker

import (
	"sync"
	"time"
)

// Table holds one Breaker per key, created on demand with shared settings.
// The engine keys one table by destination id and the risk gate keys another
// by follower id.
type Table struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	failureThreshold int
	recoveryTimeout  time.Duration
}

func NewTable(failureThreshold int, recoveryTimeout time.Duration) *Table {
	return &Table{
		breakers:         map[string]*Breaker{},
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the breaker for key, allocating it on first use.
func (t *Table) Get(key string) *Breaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.breakers[key]
	if !ok {
		b = New(t.failureThreshold, t.recoveryTimeout)
		t.breakers[key] = b
	}
	return b
}

// States snapshots state per key for status endpoints.
func (t *Table) States() map[string]string {
	t.mu.Lock()
	keys := make([]string, 0, len(t.breakers))
	bs := make([]*Breaker, 0, len(t.breakers))
	for k, b := range t.breakers {
		keys = append(keys, k)
		bs = append(bs, b)
	}
	t.mu.Unlock()

	out := make(map[string]string, len(keys))
	for i, k := range keys {
		out[k] = bs[i].State().String()
	}
	return out
}
