package ledger

import (
	"testing"

	"mmcore/internal/book"
)

func testLimits() Limits {
	return Limits{
		MaxPositionSize:  1000,
		MaxLongPosition:  500,
		MaxShortPosition: 500,
		MaxDailyLoss:     1000000,
		MaxDrawdown:      1000000,
	}
}

func TestWeightedAverageAndRealized(t *testing.T) {
	l := New(testLimits())

	l.RecordTrade(1, 1000000, 100, book.Buy, 1)
	l.RecordTrade(1, 1010000, 100, book.Buy, 2)

	p, ok := l.GetPosition(1)
	if !ok {
		t.Fatalf("no position after fills")
	}
	if p.LongQuantity != 200 {
		t.Errorf("long quantity = %d, want 200", p.LongQuantity)
	}
	if p.AvgLongPrice != 1005000 {
		t.Errorf("avg long price = %d, want 1005000", p.AvgLongPrice)
	}

	l.RecordTrade(1, 1020000, 150, book.Sell, 3)

	p, _ = l.GetPosition(1)
	if p.RealizedPnL != 2250000000 {
		t.Errorf("realized = %d, want 2250000000", p.RealizedPnL)
	}
	// Gross lots: the sell opens a short, the long lot is untouched.
	if p.ShortQuantity != 150 || p.AvgShortPrice != 1020000 {
		t.Errorf("short lot = (%d @ %d), want (150 @ 1020000)", p.ShortQuantity, p.AvgShortPrice)
	}
	if p.LongQuantity != 200 {
		t.Errorf("long quantity = %d, want 200 (no netting)", p.LongQuantity)
	}
}

func TestRealizedPnLSymmetry(t *testing.T) {
	l := New(testLimits())
	l.RecordTrade(1, 1000000, 50, book.Buy, 1)
	l.RecordTrade(1, 1003000, 50, book.Sell, 2)

	p, _ := l.GetPosition(1)
	if want := int64(3000 * 50); p.RealizedPnL != want {
		t.Errorf("realized = %d, want %d", p.RealizedPnL, want)
	}
	if p.LongQuantity != 50 || p.ShortQuantity != 50 {
		t.Errorf("lots = (%d, %d), want (50, 50)", p.LongQuantity, p.ShortQuantity)
	}
}

func TestRealizedOnBuyCoveringShort(t *testing.T) {
	l := New(testLimits())
	l.RecordTrade(1, 1010000, 100, book.Sell, 1)
	l.RecordTrade(1, 1000000, 40, book.Buy, 2)

	p, _ := l.GetPosition(1)
	// (avg short − buy price) × min(qty, short) = 10000 × 40.
	if want := int64(400000); p.RealizedPnL != want {
		t.Errorf("realized = %d, want %d", p.RealizedPnL, want)
	}
	if p.ShortQuantity != 100 {
		t.Errorf("short quantity = %d, want 100 (no netting)", p.ShortQuantity)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	l := New(testLimits())
	l.RecordTrade(1, 1000000, 100, book.Buy, 1)
	l.RecordTrade(1, 1010000, 50, book.Sell, 2)

	l.UpdateUnrealizedPnL(1, 1005000)

	p, _ := l.GetPosition(1)
	// (mark − avg long) × long + (avg short − mark) × short.
	want := int64(5000*100) + int64(5000*50)
	if p.UnrealizedPnL != want {
		t.Errorf("unrealized = %d, want %d", p.UnrealizedPnL, want)
	}

	// Marking an unknown symbol is a no-op.
	l.UpdateUnrealizedPnL(9, 1005000)
	if _, ok := l.GetPosition(9); ok {
		t.Errorf("marking created a position")
	}
}

func TestUpdateAllUnrealizedPnL(t *testing.T) {
	l := New(testLimits())
	l.RecordTrade(1, 1000000, 100, book.Buy, 1)
	l.RecordTrade(2, 2000000, 100, book.Buy, 2)

	l.UpdateAllUnrealizedPnL(map[book.SymbolID]book.Price{
		1: 1001000,
		2: 2002000,
	})

	if got := l.TotalUnrealizedPnL(); got != 1000*100+2000*100 {
		t.Errorf("total unrealized = %d", got)
	}
	if got, want := l.TotalPnL(), l.TotalRealizedPnL()+l.TotalUnrealizedPnL(); got != want {
		t.Errorf("total pnl = %d, want %d", got, want)
	}
}

func TestPositionLimits(t *testing.T) {
	l := New(Limits{MaxPositionSize: 1000, MaxLongPosition: 500, MaxShortPosition: 500})

	// No position yet: only the total size bound applies.
	if !l.CheckPositionLimits(1, 1000, book.Buy) {
		t.Errorf("fresh symbol at max size rejected")
	}
	if l.CheckPositionLimits(1, 1001, book.Buy) {
		t.Errorf("fresh symbol above max size accepted")
	}

	l.RecordTrade(1, 1000000, 400, book.Buy, 1)

	if l.CheckPositionLimits(1, 200, book.Buy) {
		t.Errorf("buy to net 600 accepted with max long 500")
	}
	if !l.CheckPositionLimits(1, 100, book.Buy) {
		t.Errorf("buy to net 500 rejected")
	}
	if l.CheckPositionLimits(1, 901, book.Sell) {
		t.Errorf("sell to net -501 accepted with max short 500")
	}
	if !l.CheckPositionLimits(1, 600, book.Sell) {
		t.Errorf("sell inside bounds rejected")
	}

	// Total gross size bound.
	l.RecordTrade(1, 1000000, 500, book.Sell, 2)
	if l.CheckPositionLimits(1, 101, book.Buy) {
		t.Errorf("gross 1001 accepted with max size 1000")
	}
}

func TestRiskLimits(t *testing.T) {
	l := New(Limits{MaxPositionSize: 10000, MaxLongPosition: 10000, MaxShortPosition: 10000,
		MaxDailyLoss: 500000, MaxDrawdown: 800000})

	if !l.CheckRiskLimits() {
		t.Errorf("empty ledger outside risk limits")
	}

	// Buy high, mark low: unrealized loss of 600000.
	l.RecordTrade(1, 1000000, 100, book.Buy, 1)
	l.UpdateUnrealizedPnL(1, 994000)

	if l.CheckRiskLimits() {
		t.Errorf("loss of 600000 passed daily loss of 500000")
	}

	l.UpdateUnrealizedPnL(1, 996000)
	if !l.CheckRiskLimits() {
		t.Errorf("loss of 400000 rejected")
	}
}

func TestTradeHistory(t *testing.T) {
	l := New(testLimits())
	l.RecordTrade(1, 1000000, 10, book.Buy, 1)
	l.RecordTrade(2, 2000000, 20, book.Sell, 2)
	l.RecordTrade(1, 1001000, 30, book.Buy, 3)

	h := l.TradeHistory(1)
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if h[0].OrderID != 1 || h[1].OrderID != 3 {
		t.Errorf("history out of record order: %v", h)
	}

	all := l.AllTrades()
	if len(all) != 3 {
		t.Fatalf("all trades length = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp < all[i-1].Timestamp {
			t.Errorf("all trades not sorted by timestamp")
		}
	}

	l.ClearTradeHistory()
	if len(l.AllTrades()) != 0 {
		t.Errorf("history survived clear")
	}
	if _, ok := l.GetPosition(1); !ok {
		t.Errorf("position dropped by history clear")
	}
}

func TestStatsAndReset(t *testing.T) {
	l := New(testLimits())
	l.RecordTrade(1, 1000000, 10, book.Buy, 1)
	l.RecordTrade(2, 2000000, 20, book.Buy, 2)
	l.UpdateUnrealizedPnL(1, 1001000)

	s := l.GetStats()
	if s.Symbols != 2 || s.Trades != 2 {
		t.Errorf("stats = %+v", s)
	}
	if s.TotalPnL != s.RealizedPnL+s.UnrealizedPnL {
		t.Errorf("total pnl inconsistent: %+v", s)
	}

	l.Reset()
	s = l.GetStats()
	if s.Symbols != 0 || s.Trades != 0 || s.TotalPnL != 0 {
		t.Errorf("stats after reset = %+v", s)
	}
}

func TestRestore(t *testing.T) {
	l := New(testLimits())
	l.Restore([]Position{
		{Symbol: 3, LongQuantity: 100, AvgLongPrice: 1000000, RealizedPnL: 500},
	})

	p, ok := l.GetPosition(3)
	if !ok {
		t.Fatalf("restored position missing")
	}
	if p.LongQuantity != 100 || p.AvgLongPrice != 1000000 || p.RealizedPnL != 500 {
		t.Errorf("restored position = %+v", p)
	}

	// Restored lots feed the same accounting as live fills.
	l.RecordTrade(3, 1002000, 50, book.Sell, 9)
	p, _ = l.GetPosition(3)
	if want := int64(500 + 2000*50); p.RealizedPnL != want {
		t.Errorf("realized after restore = %d, want %d", p.RealizedPnL, want)
	}
}

func TestAllPositionsSorted(t *testing.T) {
	l := New(testLimits())
	l.RecordTrade(5, 1000000, 10, book.Buy, 1)
	l.RecordTrade(2, 1000000, 10, book.Buy, 2)
	l.RecordTrade(9, 1000000, 10, book.Buy, 3)

	ps := l.AllPositions()
	if len(ps) != 3 {
		t.Fatalf("positions = %d, want 3", len(ps))
	}
	if ps[0].Symbol != 2 || ps[1].Symbol != 5 || ps[2].Symbol != 9 {
		t.Errorf("positions not sorted by symbol: %v", ps)
	}
}
