package llm

import (
	"testing"
	"time"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	if cb.State() != CircuitClosed {
		t.Fatalf("initial state = %v, want closed", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("closed breaker should allow requests")
	}
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Fatalf("state after 2/3 failures = %v, want closed", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state after 3/3 failures = %v, want open", cb.State())
	}
	if cb.Allow() {
		t.Fatal("open breaker should reject requests before recovery timeout")
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed (success should have reset the streak)", cb.State())
	}
}

func TestCircuitBreakerHalfOpenAfterRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("breaker should allow a probe request once recovery timeout elapses")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state after probe = %v, want half_open", cb.State())
	}
}

func TestCircuitBreakerHalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow() // transitions to half-open

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("state after half-open success = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.Allow() // transitions to half-open

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state after half-open failure = %v, want open", cb.State())
	}
}

func TestCircuitBreakerDefaultsAppliedForInvalidInput(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	if cb.failureThreshold != 5 {
		t.Errorf("failureThreshold = %d, want default 5", cb.failureThreshold)
	}
	if cb.recoveryTimeout != 30*time.Second {
		t.Errorf("recoveryTimeout = %v, want default 30s", cb.recoveryTimeout)
	}
}
