package breaker

import (
	"testing"
	"time"
)

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *time.Time) {
	b := New(threshold, recovery)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if !b.CanExecute() {
			t.Fatalf("breaker open after %d failures, threshold is 5", i+1)
		}
	}
	b.RecordFailure()
	if b.CanExecute() {
		t.Fatalf("breaker still closed after 5 failures")
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state=%v want=%v", got, StateOpen)
	}
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	if got := b.FailureCount(); got != 0 {
		t.Fatalf("failureCount=%d want=0", got)
	}

	// Four more failures after the reset must not trip it.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if !b.CanExecute() {
		t.Fatalf("breaker open after reset plus 4 failures")
	}
}

func TestBreaker_RecoveryWindowMovesToHalfOpen(t *testing.T) {
	b, now := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.CanExecute() {
		t.Fatalf("breaker should be open")
	}

	*now = now.Add(59 * time.Second)
	if b.CanExecute() {
		t.Fatalf("breaker half-open before recovery window elapsed")
	}

	*now = now.Add(time.Second)
	if !b.CanExecute() {
		t.Fatalf("breaker not half-open after recovery window")
	}
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state=%v want=%v", got, StateHalfOpen)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(time.Minute)
	if !b.CanExecute() {
		t.Fatalf("trial call not permitted")
	}

	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state=%v want=%v", got, StateClosed)
	}
	if got := b.FailureCount(); got != 0 {
		t.Fatalf("failureCount=%d want=0", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(5, time.Minute)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(time.Minute)
	if !b.CanExecute() {
		t.Fatalf("trial call not permitted")
	}

	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("state=%v want=%v", got, StateOpen)
	}

	// The failed trial restarts the recovery window.
	*now = now.Add(30 * time.Second)
	if b.CanExecute() {
		t.Fatalf("breaker half-open 30s after failed trial")
	}
	*now = now.Add(30 * time.Second)
	if !b.CanExecute() {
		t.Fatalf("breaker not half-open a full window after failed trial")
	}
}

func TestTable_IsolatesKeys(t *testing.T) {
	tbl := NewTable(2, time.Minute)

	a := tbl.Get("dest-a")
	a.RecordFailure()
	a.RecordFailure()

	if tbl.Get("dest-a").CanExecute() {
		t.Fatalf("dest-a should be open")
	}
	if !tbl.Get("dest-b").CanExecute() {
		t.Fatalf("dest-b should be unaffected")
	}
	if got := tbl.Get("dest-a"); got != a {
		t.Fatalf("Get returned a different breaker for the same key")
	}

	states := tbl.States()
	if states["dest-a"] != "open" || states["dest-b"] != "closed" {
		t.Fatalf("states=%v want dest-a=open dest-b=closed", states)
	}
}
