package resilience

import (
	"testing"
	"time"
)

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	b := NewBreaker(4, 0.5, time.Minute)
	for i := 0; i < 2; i++ {
		b.Report(true)
	}
	for i := 0; i < 2; i++ {
		b.Report(false)
	}
	if b.CurrentState() != Open {
		t.Fatalf("expected breaker open, got %s", b.CurrentState())
	}
	if b.Allow() {
		t.Fatal("expected open breaker to reject requests")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(1, 0.5, 10*time.Millisecond)
	b.Report(false)
	if b.CurrentState() != Open {
		t.Fatalf("expected open, got %s", b.CurrentState())
	}
	time.Sleep(15 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected probe to be allowed after cool-off")
	}
	if b.CurrentState() != HalfOpen {
		t.Fatalf("expected half_open, got %s", b.CurrentState())
	}
	b.Report(true)
	if b.CurrentState() != Closed {
		t.Fatalf("expected closed after successful probe, got %s", b.CurrentState())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, 0.5, 5*time.Millisecond)
	b.Report(false)
	time.Sleep(10 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected probe to be allowed")
	}
	b.Report(false)
	if b.CurrentState() != Open {
		t.Fatalf("expected reopen after failed probe, got %s", b.CurrentState())
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	if got := Backoff(base, 1, 0); got != base {
		t.Fatalf("attempt 1: expected %v, got %v", base, got)
	}
	if got := Backoff(base, 3, 0); got != 4*base {
		t.Fatalf("attempt 3: expected %v, got %v", 4*base, got)
	}
}
