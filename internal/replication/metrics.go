package replication

import (
	"sync"
	"time"
)

// Metrics aggregates engine-level counters plus a rolling average of task
// latency over the most recent window (default last 1000 terminal tasks).
type Metrics struct {
	mu sync.Mutex

	totalTasks     uint64
	completedTasks uint64
	partialTasks   uint64
	failedTasks    uint64
	cancelledTasks uint64

	latencies []float64
	window    int
	byDest    map[string]*destCounter
}

type destCounter struct {
	attempts  uint64
	successes uint64
}

func NewMetrics(window int) *Metrics {
	if window <= 0 {
		window = 1000
	}
	return &Metrics{
		window: window,
		byDest: map[string]*destCounter{},
	}
}

// ObserveTask records one terminal task and its wall-clock latency.
func (m *Metrics) ObserveTask(status TaskStatus, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalTasks++
	switch status {
	case StatusCompleted:
		m.completedTasks++
	case StatusPartial:
		m.partialTasks++
	case StatusFailed:
		m.failedTasks++
	case StatusCancelled:
		// A cancelled task never executed, so it carries no latency sample.
		m.cancelledTasks++
		return
	}

	m.latencies = append(m.latencies, float64(latency)/float64(time.Millisecond))
	if len(m.latencies) > m.window {
		m.latencies = m.latencies[1:]
	}
}

// ObserveDispatch records one per-destination execution outcome.
func (m *Metrics) ObserveDispatch(destinationID string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byDest[destinationID]
	if !ok {
		c = &destCounter{}
		m.byDest[destinationID] = c
	}
	c.attempts++
	if success {
		c.successes++
	}
}

// Snapshot is the exported metrics view.
type Snapshot struct {
	TotalTasks     uint64             `json:"total_tasks"`
	CompletedTasks uint64             `json:"completed_tasks"`
	PartialTasks   uint64             `json:"partial_tasks"`
	FailedTasks    uint64             `json:"failed_tasks"`
	CancelledTasks uint64             `json:"cancelled_tasks"`
	AvgLatencyMs   float64            `json:"avg_latency_ms"`
	SuccessRates   map[string]float64 `json:"destination_success_rates"`
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		TotalTasks:     m.totalTasks,
		CompletedTasks: m.completedTasks,
		PartialTasks:   m.partialTasks,
		FailedTasks:    m.failedTasks,
		CancelledTasks: m.cancelledTasks,
		SuccessRates:   make(map[string]float64, len(m.byDest)),
	}
	if len(m.latencies) > 0 {
		var sum float64
		for _, v := range m.latencies {
			sum += v
		}
		snap.AvgLatencyMs = sum / float64(len(m.latencies))
	}
	for id, c := range m.byDest {
		if c.attempts > 0 {
			snap.SuccessRates[id] = float64(c.successes) / float64(c.attempts)
		}
	}
	return snap
}
