package audit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func boolPtr(b bool) *bool { return &b }

func TestRecordRoundTrip(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	id, err := svc.Record(ctx, RecordInput{
		AccountID:   "@alice",
		EventType:   "payment_attempt",
		Gateway:     "venmo",
		AmountCents: 5000,
		Success:     boolPtr(true),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero event id")
	}

	events, err := svc.History(ctx, "@alice", HistoryFilter{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.ID != id {
		t.Errorf("id = %d, want %d", e.ID, id)
	}
	if e.AccountID != "@alice" || e.EventType != EventPaymentAttempt {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Gateway != "venmo" || e.AmountCents != 5000 || !e.Success {
		t.Errorf("fields not preserved: %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("server timestamp not assigned")
	}
}

func TestRecordValidation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name string
		in   RecordInput
	}{
		{"missing account", RecordInput{EventType: "login"}},
		{"malformed account", RecordInput{AccountID: "alice", EventType: "login"}},
		{"unknown event type", RecordInput{AccountID: "@alice", EventType: "password_reset"}},
		{"missing event type", RecordInput{AccountID: "@alice"}},
		{"bad ip hash", RecordInput{AccountID: "@alice", EventType: "login", IPHash: "deadbeef"}},
		{"negative amount", RecordInput{AccountID: "@alice", EventType: "payment_attempt", AmountCents: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Record(ctx, tc.in); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// Nothing partial may have been stored.
	events, err := svc.History(ctx, "@alice", HistoryFilter{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("rejected writes left %d events behind", len(events))
	}
}

func TestSuccessDefaultsTrue(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.Record(ctx, RecordInput{AccountID: "@alice", EventType: "login"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, _ := svc.History(ctx, "@alice", HistoryFilter{})
	if len(events) != 1 || !events[0].Success {
		t.Error("success should default to true when omitted")
	}
}

func TestHistoryFilters(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Record(ctx, RecordInput{AccountID: "@alice", EventType: "login"}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if _, err := svc.Record(ctx, RecordInput{AccountID: "@alice", EventType: "payment_attempt", Gateway: "stripe", AmountCents: 100}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := svc.Record(ctx, RecordInput{AccountID: "@bob", EventType: "login"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Type filter
	events, err := svc.History(ctx, "@alice", HistoryFilter{EventType: EventPaymentAttempt})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("type filter: expected 1 event, got %d", len(events))
	}

	// Limit
	events, _ = svc.History(ctx, "@alice", HistoryFilter{Limit: 2})
	if len(events) != 2 {
		t.Errorf("limit: expected 2 events, got %d", len(events))
	}

	// Descending order
	events, _ = svc.History(ctx, "@alice", HistoryFilter{})
	for i := 1; i < len(events); i++ {
		if events[i].ID > events[i-1].ID {
			t.Error("history is not ordered newest first")
		}
	}

	// Since filter excludes everything in the future
	events, _ = svc.History(ctx, "@alice", HistoryFilter{Since: time.Now().Add(time.Hour)})
	if len(events) != 0 {
		t.Errorf("future since bound: expected 0 events, got %d", len(events))
	}
}

func TestHistoryUnknownAccountIsEmpty(t *testing.T) {
	svc := NewService(NewMemoryStore())

	events, err := svc.History(context.Background(), "@nobody", HistoryFilter{})
	if err != nil {
		t.Fatalf("unknown account should not error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty history, got %d events", len(events))
	}
}

func TestCountSinceAndDistinctGateways(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	for _, g := range []string{"venmo", "stripe", "venmo"} {
		if _, err := svc.Record(ctx, RecordInput{AccountID: "@alice", EventType: "gateway_link", Gateway: g}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	count, err := store.CountSince(ctx, "@alice", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountSince = %d, want 3", count)
	}

	gateways, err := store.DistinctGateways(ctx, "@alice", EventGatewayLink)
	if err != nil {
		t.Fatalf("DistinctGateways failed: %v", err)
	}
	if len(gateways) != 2 {
		t.Fatalf("expected 2 distinct gateways, got %v", gateways)
	}
	if gateways[0] != "venmo" || gateways[1] != "stripe" {
		t.Errorf("gateways not in first-seen order: %v", gateways)
	}
}

func TestHistoryPageCursors(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Record(ctx, RecordInput{AccountID: "@alice", EventType: "login"}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	seen := map[int64]bool{}
	cursor := ""
	pages := 0
	for {
		events, next, hasMore, err := svc.HistoryPage(ctx, "@alice", HistoryFilter{Limit: 2}, cursor)
		if err != nil {
			t.Fatalf("HistoryPage failed: %v", err)
		}
		pages++
		for i, e := range events {
			if seen[e.ID] {
				t.Fatalf("event %d returned on more than one page", e.ID)
			}
			seen[e.ID] = true
			if i > 0 && e.CreatedAt.After(events[i-1].CreatedAt) {
				t.Errorf("events not in descending order")
			}
		}
		if !hasMore {
			if next != "" {
				t.Errorf("final page should have empty cursor, got %q", next)
			}
			break
		}
		if next == "" {
			t.Fatal("hasMore set but cursor empty")
		}
		cursor = next
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
	}

	if len(seen) != 5 {
		t.Errorf("paged through %d events, want 5", len(seen))
	}
	if pages != 3 {
		t.Errorf("expected 3 pages of size 2, got %d", pages)
	}
}

func TestHistoryPageRejectsBadCursor(t *testing.T) {
	svc := NewService(NewMemoryStore())

	_, _, _, err := svc.HistoryPage(context.Background(), "@alice", HistoryFilter{}, "not-base64!!")
	if err == nil {
		t.Fatal("expected error for malformed cursor")
	}
}

func TestRecordEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(prev)

	svc := NewService(NewMemoryStore())
	if _, err := svc.Record(context.Background(), RecordInput{AccountID: "@alice", EventType: "login"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "audit.Record" {
		t.Errorf("span name = %q, want audit.Record", spans[0].Name())
	}
}
