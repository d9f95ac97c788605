package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.Upsert(ctx, Entry{Date: "2026-08-01", Merchant: "Blue Bottle", Amount: 6.50, Category: "coffee"})
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if !inserted {
		t.Error("first write should insert")
	}

	// Same natural key updates in place.
	inserted, err = store.Upsert(ctx, Entry{Date: "2026-08-01", Merchant: "Blue Bottle", Amount: 6.50, Category: "meals", Note: "client meeting"})
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if inserted {
		t.Error("second write with same key should update")
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	got, err := store.Get(ctx, "2026-08-01", "Blue Bottle", 6.50)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Category != "meals" || got.Note != "client meeting" {
		t.Errorf("entry = %+v", got)
	}
}

func TestStoreDistinctKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{Date: "2026-08-01", Merchant: "Blue Bottle", Amount: 6.50},
		{Date: "2026-08-02", Merchant: "Blue Bottle", Amount: 6.50},
		{Date: "2026-08-01", Merchant: "Blue Bottle", Amount: 4.25},
	}
	for _, e := range entries {
		if _, err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert(%+v) error: %v", e, err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestUpsertTool(t *testing.T) {
	store := newTestStore(t)
	tool := NewUpsertTool(store)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"date":"2026-08-15","merchant":"Lyft","amount":23.40,"category":"travel"}`))
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "inserted entry: 2026-08-15 Lyft 23.40") {
		t.Errorf("content = %q", result.Content)
	}

	result, err = tool.Execute(context.Background(), json.RawMessage(
		`{"date":"2026-08-15","merchant":"Lyft","amount":23.40,"note":"airport"}`))
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result.Content, "updated entry") {
		t.Errorf("content = %q", result.Content)
	}
}

func TestUpsertToolValidation(t *testing.T) {
	store := newTestStore(t)
	tool := NewUpsertTool(store)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad date", `{"date":"Aug 15","merchant":"Lyft","amount":10}`, "YYYY-MM-DD"},
		{"blank merchant", `{"date":"2026-08-15","merchant":"  ","amount":10}`, "merchant is required"},
		{"zero amount", `{"date":"2026-08-15","merchant":"Lyft","amount":0}`, "amount must be positive"},
		{"negative amount", `{"date":"2026-08-15","merchant":"Lyft","amount":-5}`, "amount must be positive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := tool.Execute(context.Background(), json.RawMessage(tc.input))
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected a tool error")
			}
			if !strings.Contains(result.Content, tc.want) {
				t.Errorf("content = %q, want substring %q", result.Content, tc.want)
			}
		})
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("invalid inputs should not write rows, count = %d", n)
	}
}
