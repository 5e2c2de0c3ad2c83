package devicehealth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwhitt/trustrail/internal/circuitbreaker"
)

func TestBreakerProviderPassesThrough(t *testing.T) {
	inner := &countingProvider{inner: NewStaticProvider(80)}
	p := NewBreakerProvider(inner, 3, time.Minute)

	report, err := p.Fetch(context.Background(), "dev-1", FetchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Score != 80 {
		t.Errorf("expected score 80, got %v", report.Score)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestBreakerProviderOpensAfterFailures(t *testing.T) {
	inner := &countingProvider{inner: NewStaticProvider(80), err: errors.New("provider down")}
	p := NewBreakerProvider(inner, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := p.Fetch(context.Background(), "dev-1", FetchOptions{}); err == nil {
			t.Fatal("expected error from failing provider")
		}
	}
	if got := p.State(); got != circuitbreaker.StateOpen {
		t.Fatalf("expected open circuit after 3 failures, got %v", got)
	}

	// Open circuit fails fast without touching the provider.
	before := inner.calls
	_, err := p.Fetch(context.Background(), "dev-1", FetchOptions{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != before {
		t.Error("open circuit should not call the inner provider")
	}
}

func TestBreakerProviderRecoversAfterProbe(t *testing.T) {
	inner := &countingProvider{inner: NewStaticProvider(80), err: errors.New("provider down")}
	p := NewBreakerProvider(inner, 1, 10*time.Millisecond)

	if _, err := p.Fetch(context.Background(), "dev-1", FetchOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if got := p.State(); got != circuitbreaker.StateOpen {
		t.Fatalf("expected open circuit, got %v", got)
	}

	// After openDuration the probe goes through; provider recovered.
	inner.err = nil
	time.Sleep(20 * time.Millisecond)

	report, err := p.Fetch(context.Background(), "dev-1", FetchOptions{})
	if err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if report.Score != 80 {
		t.Errorf("expected score 80, got %v", report.Score)
	}
	if got := p.State(); got != circuitbreaker.StateClosed {
		t.Fatalf("expected closed circuit after successful probe, got %v", got)
	}
}
