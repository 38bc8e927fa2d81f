package latency

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultWindowSize = 1000

	// Destinations with no history are scored with these so they are still
	// tried, just never preferred over a destination with a track record.
	defaultLatencyMs   = 1000.0
	defaultSuccessRate = 0.5

	// Floor for an observed success rate so a fully failing window produces a
	// large finite score instead of dividing by zero.
	minSuccessRate = 0.01
)

type sample struct {
	latencyMs float64
	success   bool
}

// window is a capped rolling sample buffer; the oldest sample is dropped once full.
type window struct {
	samples []sample
	cap     int
}

func (w *window) add(s sample) {
	if w.cap <= 0 {
		w.cap = defaultWindowSize
	}
	w.samples = append(w.samples, s)
	if len(w.samples) > w.cap {
		w.samples = w.samples[1:]
	}
}

func (w *window) avgLatency() (float64, bool) {
	if w == nil || len(w.samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range w.samples {
		sum += s.latencyMs
	}
	return sum / float64(len(w.samples)), true
}

func (w *window) successRate() (float64, bool) {
	if w == nil || len(w.samples) == 0 {
		return 0, false
	}
	var ok int
	for _, s := range w.samples {
		if s.success {
			ok++
		}
	}
	return float64(ok) / float64(len(w.samples)), true
}

// Optimizer keeps rolling latency and success statistics per destination,
// per symbol and per hour of day, and ranks candidate destinations by a
// blended score (lower is better).
type Optimizer struct {
	mu sync.Mutex

	byDestination map[string]*window
	bySymbol      map[string]*window
	byHour        map[int]*window

	windowSize int
	now        func() time.Time
}

func NewOptimizer(windowSize int) *Optimizer {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &Optimizer{
		byDestination: map[string]*window{},
		bySymbol:      map[string]*window{},
		byHour:        map[int]*window{},
		windowSize:    windowSize,
		now:           time.Now,
	}
}

// Record appends one observation to all three windows.
func (o *Optimizer) Record(destination, symbol string, latency time.Duration, success bool) {
	s := sample{latencyMs: float64(latency) / float64(time.Millisecond), success: success}
	hour := o.now().UTC().Hour()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.destWindow(destination).add(s)
	o.symbolWindow(symbol).add(s)
	o.hourWindow(hour).add(s)
}

func (o *Optimizer) destWindow(key string) *window {
	w, ok := o.byDestination[key]
	if !ok {
		w = &window{cap: o.windowSize}
		o.byDestination[key] = w
	}
	return w
}

func (o *Optimizer) symbolWindow(key string) *window {
	w, ok := o.bySymbol[key]
	if !ok {
		w = &window{cap: o.windowSize}
		o.bySymbol[key] = w
	}
	return w
}

func (o *Optimizer) hourWindow(hour int) *window {
	w, ok := o.byHour[hour]
	if !ok {
		w = &window{cap: o.windowSize}
		o.byHour[hour] = w
	}
	return w
}

// Score computes the ranking score for one destination and symbol at the
// current hour. Weighted average latency divided by success rate, so slow or
// flaky destinations sort last.
func (o *Optimizer) Score(destination, symbol string) float64 {
	hour := o.now().UTC().Hour()

	o.mu.Lock()
	defer o.mu.Unlock()

	destLat, ok := o.byDestination[destination].avgLatency()
	if !ok {
		destLat = defaultLatencyMs
	}
	symLat, ok := o.bySymbol[symbol].avgLatency()
	if !ok {
		symLat = defaultLatencyMs
	}
	hourLat, ok := o.byHour[hour].avgLatency()
	if !ok {
		hourLat = defaultLatencyMs
	}
	rate, ok := o.byDestination[destination].successRate()
	switch {
	case !ok:
		rate = defaultSuccessRate
	case rate < minSuccessRate:
		// A window of pure failures must rank behind a destination with no
		// history at all, not alongside it.
		rate = minSuccessRate
	}

	return (0.4*destLat + 0.3*symLat + 0.3*hourLat) / rate
}

// Rank orders candidates ascending by score. The sort is stable, so
// destinations with identical accumulated statistics keep their input order.
func (o *Optimizer) Rank(symbol string, candidates []string) []string {
	if len(candidates) <= 1 {
		return append([]string(nil), candidates...)
	}

	type scored struct {
		id    string
		score float64
	}
	items := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		items = append(items, scored{id: id, score: o.Score(id, symbol)})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score < items[j].score
	})

	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.id)
	}
	return out
}
