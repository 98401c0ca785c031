package persist

import (
	"path/filepath"
	"testing"

	"mmcore/internal/book"
	"mmcore/internal/ledger"
)

func testStore(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "positions.dat"), capacity)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFlushLoadRoundTrip(t *testing.T) {
	s := testStore(t, 8)

	want := []ledger.Position{
		{Symbol: 1, LongQuantity: 100, AvgLongPrice: 1000000, RealizedPnL: 2500, LastUpdate: 42},
		{Symbol: 2, ShortQuantity: 50, AvgShortPrice: 2000000, UnrealizedPnL: -900},
	}
	if err := s.Flush(want); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEmptySlotsSkippedOnLoad(t *testing.T) {
	s := testStore(t, 16)
	if err := s.Flush([]ledger.Position{{Symbol: 3, LongQuantity: 1}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Symbol != 3 {
		t.Errorf("loaded %+v, want one position for symbol 3", got)
	}
}

func TestFlushShrinkClearsStaleRecords(t *testing.T) {
	s := testStore(t, 4)
	s.Flush([]ledger.Position{
		{Symbol: 1, LongQuantity: 1},
		{Symbol: 2, LongQuantity: 2},
	})
	s.Flush([]ledger.Position{
		{Symbol: 1, LongQuantity: 5},
	})

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].LongQuantity != 5 {
		t.Errorf("loaded %+v, want only the latest snapshot", got)
	}
}

func TestRegionDoubles(t *testing.T) {
	s := testStore(t, 2)

	positions := make([]ledger.Position, 5)
	for i := range positions {
		positions[i].Symbol = book.SymbolID(i + 1)
	}
	if err := s.Flush(positions); err != nil {
		t.Fatal(err)
	}

	if s.Capacity() < 5 {
		t.Errorf("capacity = %d, want >= 5", s.Capacity())
	}
	if s.Capacity() != 8 {
		t.Errorf("capacity = %d, want 8 after doubling from 2", s.Capacity())
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("loaded %d positions, want 5", len(got))
	}
}

func TestReopenKeepsLargerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.dat")

	s, err := Open(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	positions := make([]ledger.Position, 6)
	for i := range positions {
		positions[i].Symbol = book.SymbolID(i + 1)
	}
	if err := s.Flush(positions); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Capacity() < 6 {
		t.Errorf("reopened capacity = %d, want >= 6", reopened.Capacity())
	}
	got, err := reopened.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Errorf("reopened load = %d positions, want 6", len(got))
	}
}

func TestOpenBadPath(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "no", "such", "dir", "p.dat"), 4); err == nil {
		t.Errorf("open under missing directory did not error")
	}
}
