//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/mwhitt/trustrail/internal/testutil"
)

func TestPostgres_AppendAndHistory(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	e := &Event{
		AccountID:   "@alice",
		EventType:   EventPaymentSuccess,
		Gateway:     "venmo",
		AmountCents: 5000,
		Success:     true,
	}
	id, err := store.AppendEvent(ctx, e)
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if id == 0 || e.CreatedAt.IsZero() {
		t.Fatalf("AppendEvent did not populate id/created_at: id=%d", id)
	}

	events, err := store.History(ctx, "@alice", HistoryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.ID != id || got.Gateway != "venmo" || got.AmountCents != 5000 || !got.Success {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestPostgres_HistoryFiltersAndCursor(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		typ := EventLogin
		if i%2 == 1 {
			typ = EventPaymentFailed
		}
		if _, err := store.AppendEvent(ctx, &Event{AccountID: "@bob", EventType: typ, Success: true}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	logins, err := store.History(ctx, "@bob", HistoryFilter{EventType: EventLogin, Limit: 10})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(logins) != 2 {
		t.Fatalf("expected 2 login events, got %d", len(logins))
	}

	// Newest-first ordering, keyset cursor excludes the anchor row.
	all, err := store.History(ctx, "@bob", HistoryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID > all[i-1].ID {
			t.Fatalf("events not newest-first: %d before %d", all[i-1].ID, all[i].ID)
		}
	}

	anchor := all[1]
	older, err := store.History(ctx, "@bob", HistoryFilter{
		Limit:      10,
		BeforeTime: anchor.CreatedAt,
		BeforeID:   anchor.ID,
	})
	if err != nil {
		t.Fatalf("History with cursor failed: %v", err)
	}
	if len(older) != 2 {
		t.Fatalf("expected 2 events older than anchor, got %d", len(older))
	}
	for _, e := range older {
		if e.ID >= anchor.ID {
			t.Errorf("cursor returned event %d at or after anchor %d", e.ID, anchor.ID)
		}
	}
}

func TestPostgres_CountSinceAndDistinctGateways(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	for _, g := range []string{"venmo", "stripe", "venmo"} {
		if _, err := store.AppendEvent(ctx, &Event{AccountID: "@carol", EventType: EventGatewayLink, Gateway: g, Success: true}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	count, err := store.CountSince(ctx, "@carol", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountSince = %d, want 3", count)
	}

	gateways, err := store.DistinctGateways(ctx, "@carol", EventGatewayLink)
	if err != nil {
		t.Fatalf("DistinctGateways failed: %v", err)
	}
	if len(gateways) != 2 {
		t.Errorf("expected 2 distinct gateways, got %v", gateways)
	}
}
