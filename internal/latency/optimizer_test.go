package latency

import (
	"testing"
	"time"
)

func newTestOptimizer(windowSize int) *Optimizer {
	o := NewOptimizer(windowSize)
	fixed := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	o.now = func() time.Time { return fixed }
	return o
}

func TestScore_PessimisticDefaults(t *testing.T) {
	o := newTestOptimizer(0)

	// No history anywhere: 1000ms everywhere at 50% success.
	got := o.Score("unknown", "BTCUSDT")
	want := (0.4*1000 + 0.3*1000 + 0.3*1000) / 0.5
	if got != want {
		t.Fatalf("score=%f want=%f", got, want)
	}
}

func TestScore_FastDestinationBeatsDefault(t *testing.T) {
	o := newTestOptimizer(0)

	for i := 0; i < 10; i++ {
		o.Record("fast", "BTCUSDT", 20*time.Millisecond, true)
	}

	fast := o.Score("fast", "BTCUSDT")
	cold := o.Score("cold", "BTCUSDT")
	if fast >= cold {
		t.Fatalf("fast=%f cold=%f, fast destination should score lower", fast, cold)
	}
}

func TestScore_FailuresRaiseScore(t *testing.T) {
	o := newTestOptimizer(0)

	for i := 0; i < 10; i++ {
		o.Record("steady", "ETHUSDT", 50*time.Millisecond, true)
		o.Record("flaky", "ETHUSDT", 50*time.Millisecond, i%2 == 0)
	}

	if o.Score("flaky", "ETHUSDT") <= o.Score("steady", "ETHUSDT") {
		t.Fatalf("flaky destination should score higher than steady one")
	}
}

func TestScore_AllFailuresRankLast(t *testing.T) {
	o := newTestOptimizer(0)

	// "dead" answers quickly but never succeeds. A proven-broken destination
	// must sort behind both an unknown one and a slow but reliable one.
	for i := 0; i < 10; i++ {
		o.Record("dead", "BTCUSDT", 20*time.Millisecond, false)
		o.Record("slow", "BTCUSDT", 900*time.Millisecond, true)
	}

	dead := o.Score("dead", "BTCUSDT")
	if cold := o.Score("cold", "BTCUSDT"); dead <= cold {
		t.Fatalf("dead=%f cold=%f, dead destination should score higher", dead, cold)
	}
	if slow := o.Score("slow", "BTCUSDT"); dead <= slow {
		t.Fatalf("dead=%f slow=%f, dead destination should score higher", dead, slow)
	}

	got := o.Rank("BTCUSDT", []string{"dead", "cold", "slow"})
	if got[len(got)-1] != "dead" {
		t.Fatalf("rank=%v want dead last", got)
	}
}

func TestRank_OrdersByScore(t *testing.T) {
	o := newTestOptimizer(0)

	for i := 0; i < 5; i++ {
		o.Record("slow", "BTCUSDT", 800*time.Millisecond, true)
		o.Record("fast", "BTCUSDT", 30*time.Millisecond, true)
		o.Record("mid", "BTCUSDT", 200*time.Millisecond, true)
	}

	got := o.Rank("BTCUSDT", []string{"slow", "mid", "fast"})
	want := []string{"fast", "mid", "slow"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank=%v want=%v", got, want)
		}
	}
}

func TestRank_StableForUnknownDestinations(t *testing.T) {
	o := newTestOptimizer(0)

	in := []string{"c", "a", "b"}
	got := o.Rank("BTCUSDT", in)
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("rank=%v want input order %v for identical scores", got, in)
		}
	}

	// Rank must not alias the caller's slice.
	got[0] = "mutated"
	if in[0] != "c" {
		t.Fatalf("Rank mutated its input")
	}
}

func TestWindow_EvictsOldestSample(t *testing.T) {
	o := newTestOptimizer(3)

	o.Record("d", "S", 900*time.Millisecond, false)
	for i := 0; i < 3; i++ {
		o.Record("d", "S", 10*time.Millisecond, true)
	}

	w := o.byDestination["d"]
	if len(w.samples) != 3 {
		t.Fatalf("window size=%d want=3", len(w.samples))
	}
	avg, ok := w.avgLatency()
	if !ok || avg != 10 {
		t.Fatalf("avgLatency=%f ok=%v, slow sample should have been evicted", avg, ok)
	}
	rate, _ := w.successRate()
	if rate != 1 {
		t.Fatalf("successRate=%f want=1", rate)
	}
}
