package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, op := range []string{"scale", "cycle"} {
		err := s.Record(ctx, Entry{
			Operation:  op,
			Detail:     "detail",
			Outcome:    "ok",
			StartedAt:  start.Add(time.Duration(i) * time.Hour),
			FinishedAt: start.Add(time.Duration(i)*time.Hour + 10*time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Operation != "cycle" || entries[1].Operation != "scale" {
		t.Errorf("order = %s, %s", entries[0].Operation, entries[1].Operation)
	}
	if !entries[1].StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", entries[1].StartedAt, start)
	}
}

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store
	if err := s.Record(context.Background(), Entry{Operation: "scale"}); err != nil {
		t.Errorf("nil store Record = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("nil store Close = %v", err)
	}
}

func TestRecentLimit(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now()
	for range 5 {
		if err := s.Record(ctx, Entry{Operation: "scale", Outcome: "ok", StartedAt: now, FinishedAt: now}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}
