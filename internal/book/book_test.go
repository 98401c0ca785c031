package book

import "testing"

func TestAddDuplicateID(t *testing.T) {
	b := New(1)
	if !b.AddOrder(1, 1000000, 100, Buy, Limit) {
		t.Fatalf("first add failed")
	}
	if b.AddOrder(1, 999000, 50, Buy, Limit) {
		t.Errorf("duplicate id accepted")
	}
	price, qty := b.BestBid()
	if price != 1000000 || qty != 100 {
		t.Errorf("best bid = (%d, %d), want (1000000, 100)", price, qty)
	}
}

func TestAddCancelRoundTrip(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	if !b.CancelOrder(1, 0) {
		t.Fatalf("cancel failed")
	}
	if _, ok := b.GetOrder(1); ok {
		t.Errorf("order still indexed after full cancel")
	}
	if price, qty := b.BestBid(); price != 0 || qty != 0 {
		t.Errorf("level survived full cancel: (%d, %d)", price, qty)
	}
	if !b.Empty() {
		t.Errorf("book not empty after round trip")
	}
}

func TestPartialCancelClampsToRemaining(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)

	if !b.CancelOrder(1, 30) {
		t.Fatalf("partial cancel failed")
	}
	o, ok := b.GetOrder(1)
	if !ok {
		t.Fatalf("order gone after partial cancel")
	}
	if o.Remaining() != 70 {
		t.Errorf("remaining = %d, want 70", o.Remaining())
	}
	if _, qty := b.BestBid(); qty != 70 {
		t.Errorf("level quantity = %d, want 70", qty)
	}

	// Over-cancel clamps to the remaining quantity and retires the order.
	if !b.CancelOrder(1, 500) {
		t.Fatalf("clamped cancel failed")
	}
	if _, ok := b.GetOrder(1); ok {
		t.Errorf("order survived clamped full cancel")
	}
}

func TestCancelUnknownOrTerminal(t *testing.T) {
	b := New(1)
	if b.CancelOrder(99, 0) {
		t.Errorf("cancel of unknown id returned true")
	}
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.CancelOrder(1, 0)
	if b.CancelOrder(1, 0) {
		t.Errorf("cancel of terminal order returned true")
	}
}

func TestModifyMovesRemaining(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.ExecuteTrade(1000000, 40, Sell)

	if !b.ModifyOrder(1, 999000, 100) {
		t.Fatalf("modify failed")
	}
	o, _ := b.GetOrder(1)
	if o.FilledQuantity != 40 {
		t.Errorf("filled quantity not preserved: %d", o.FilledQuantity)
	}
	price, qty := b.BestBid()
	if price != 999000 || qty != 60 {
		t.Errorf("best bid = (%d, %d), want (999000, 60)", price, qty)
	}
	// Old level must be gone.
	if b.bids.Len() != 1 {
		t.Errorf("bid levels = %d, want 1", b.bids.Len())
	}
}

func TestModifyIdempotent(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)

	b.ModifyOrder(1, 999000, 80)
	first, _ := b.GetOrder(1)
	firstBid := b.Bids(0)

	b.ModifyOrder(1, 999000, 80)
	second, _ := b.GetOrder(1)
	secondBid := b.Bids(0)

	if first.Price != second.Price || first.Quantity != second.Quantity ||
		first.FilledQuantity != second.FilledQuantity {
		t.Errorf("repeated modify changed order state")
	}
	if len(firstBid) != len(secondBid) || firstBid[0] != secondBid[0] {
		t.Errorf("repeated modify changed depth: %v vs %v", firstBid, secondBid)
	}
}

func TestModifyRejectsBelowFilled(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.ExecuteTrade(1000000, 40, Sell)

	if b.ModifyOrder(1, 1000000, 30) {
		t.Errorf("modify below filled quantity accepted")
	}
	if _, qty := b.BestBid(); qty != 60 {
		t.Errorf("level quantity changed on rejected modify: %d", qty)
	}
}

func TestModifyToFilledQuantityRetires(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.ExecuteTrade(1000000, 40, Sell)

	if !b.ModifyOrder(1, 1000000, 40) {
		t.Fatalf("modify to filled quantity failed")
	}
	if _, ok := b.GetOrder(1); ok {
		t.Errorf("order with zero remaining still resting")
	}
	if !b.Empty() {
		t.Errorf("empty level survived")
	}
}

func TestModifyUnknown(t *testing.T) {
	b := New(1)
	if b.ModifyOrder(7, 1000000, 10) {
		t.Errorf("modify of unknown id returned true")
	}
}

// Crossed quote, partial fill against the bid.
func TestExecutePartialFill(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 1000, Buy, Limit)
	b.AddOrder(2, 1001000, 1000, Sell, Limit)

	if !b.ExecuteTrade(1000000, 500, Sell) {
		t.Fatalf("execute returned false")
	}

	if price, qty := b.BestBid(); price != 1000000 || qty != 500 {
		t.Errorf("best bid = (%d, %d), want (1000000, 500)", price, qty)
	}
	if price, qty := b.BestAsk(); price != 1001000 || qty != 1000 {
		t.Errorf("best ask = (%d, %d), want (1001000, 1000)", price, qty)
	}
	if mid := b.Mid(); mid != 1000500 {
		t.Errorf("mid = %d, want 1000500", mid)
	}
	if spread := b.Spread(); spread != 1000 {
		t.Errorf("spread = %d, want 1000", spread)
	}
	o, ok := b.GetOrder(1)
	if !ok || o.Status != Active || o.FilledQuantity != 500 {
		t.Errorf("order 1 = %+v, want active with filled 500", o)
	}
}

// Multi-level sweep across two bid levels.
func TestExecuteMultiLevelSweep(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.AddOrder(2, 999000, 200, Buy, Limit)

	if !b.ExecuteTrade(998000, 250, Sell) {
		t.Fatalf("execute returned false")
	}

	if _, ok := b.GetOrder(1); ok {
		t.Errorf("order 1 should be fully consumed")
	}
	o, ok := b.GetOrder(2)
	if !ok || o.FilledQuantity != 150 || o.Remaining() != 50 {
		t.Errorf("order 2 = %+v, want filled 150 remaining 50", o)
	}
	if price, qty := b.BestBid(); price != 999000 || qty != 50 {
		t.Errorf("best bid = (%d, %d), want (999000, 50)", price, qty)
	}
}

// Aggressor price worse than the best opposite level: nothing trades.
func TestExecutePriceLimitStop(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)

	if b.ExecuteTrade(1001000, 100, Sell) {
		t.Errorf("sell at 1001000 hit a bid at 1000000")
	}
	if price, qty := b.BestBid(); price != 1000000 || qty != 100 {
		t.Errorf("book changed: (%d, %d)", price, qty)
	}
}

func TestExecuteEmptyBook(t *testing.T) {
	b := New(1)
	if b.ExecuteTrade(1000000, 100, Buy) {
		t.Errorf("execute against empty book returned true")
	}
}

func TestExecuteConservation(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Sell, Limit)
	b.AddOrder(2, 1001000, 200, Sell, Limit)
	b.AddOrder(3, 1002000, 300, Sell, Limit)

	total := func() Quantity {
		var sum Quantity
		for _, lv := range b.Asks(0) {
			sum += lv.Quantity
		}
		return sum
	}

	before := total()
	// Crossable at 1001000: levels 1000000 and 1001000, 300 total; ask for 450.
	b.ExecuteTrade(1001000, 450, Buy)
	consumed := before - total()
	if consumed != 300 {
		t.Errorf("consumed %d, want 300 (crossable quantity)", consumed)
	}
	if price, qty := b.BestAsk(); price != 1002000 || qty != 300 {
		t.Errorf("best ask = (%d, %d), want (1002000, 300)", price, qty)
	}
}

func TestExecuteFIFOWithinLevel(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.AddOrder(2, 1000000, 100, Buy, Limit)

	b.ExecuteTrade(1000000, 150, Sell)

	if _, ok := b.GetOrder(1); ok {
		t.Errorf("first arrival should be consumed first")
	}
	o, ok := b.GetOrder(2)
	if !ok || o.Remaining() != 50 {
		t.Errorf("order 2 remaining = %d, want 50", o.Remaining())
	}
}

func TestQueriesEmptySides(t *testing.T) {
	b := New(1)
	if price, qty := b.BestBid(); price != 0 || qty != 0 {
		t.Errorf("empty best bid = (%d, %d)", price, qty)
	}
	if price, qty := b.BestAsk(); price != 0 || qty != 0 {
		t.Errorf("empty best ask = (%d, %d)", price, qty)
	}
	if b.Mid() != 0 || b.Spread() != 0 {
		t.Errorf("mid/spread on empty book not zero")
	}

	// One-sided book still reports zero mid and spread.
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	if b.Mid() != 0 || b.Spread() != 0 {
		t.Errorf("mid/spread with empty ask side not zero")
	}
}

func TestDepthOrdering(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 999000, 100, Buy, Limit)
	b.AddOrder(2, 1000000, 200, Buy, Limit)
	b.AddOrder(3, 998000, 300, Buy, Limit)
	b.AddOrder(4, 1001000, 100, Sell, Limit)
	b.AddOrder(5, 1003000, 200, Sell, Limit)

	bids := b.Bids(2)
	if len(bids) != 2 {
		t.Fatalf("bid depth = %d, want 2", len(bids))
	}
	if bids[0].Price != 1000000 || bids[1].Price != 999000 {
		t.Errorf("bids not descending: %v", bids)
	}

	asks := b.Asks(0)
	if len(asks) != 2 {
		t.Fatalf("ask depth = %d, want 2", len(asks))
	}
	if asks[0].Price != 1001000 || asks[1].Price != 1003000 {
		t.Errorf("asks not ascending: %v", asks)
	}
}

func TestLevelAggregation(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.AddOrder(2, 1000000, 250, Buy, Limit)

	price, qty := b.BestBid()
	if price != 1000000 || qty != 350 {
		t.Errorf("best bid = (%d, %d), want (1000000, 350)", price, qty)
	}

	b.CancelOrder(1, 0)
	if _, qty := b.BestBid(); qty != 250 {
		t.Errorf("level quantity after cancel = %d, want 250", qty)
	}
}

func TestGetStats(t *testing.T) {
	b := New(1)
	b.AddOrder(1, 1000000, 100, Buy, Limit)
	b.AddOrder(2, 1001000, 100, Sell, Limit)

	s := b.GetStats()
	if s.TotalOrders != 2 || s.ActiveOrders != 2 {
		t.Errorf("orders = (%d, %d), want (2, 2)", s.TotalOrders, s.ActiveOrders)
	}
	if s.BidLevels != 1 || s.AskLevels != 1 {
		t.Errorf("levels = (%d, %d), want (1, 1)", s.BidLevels, s.AskLevels)
	}
	if s.BestBid != 1000000 || s.BestAsk != 1001000 {
		t.Errorf("best = (%d, %d)", s.BestBid, s.BestAsk)
	}
	if s.Mid != 1000500 || s.Spread != 1000 {
		t.Errorf("mid/spread = (%d, %d)", s.Mid, s.Spread)
	}
}

func TestPoolRecycling(t *testing.T) {
	b := New(1)
	for i := 0; i < 100; i++ {
		id := OrderID(i + 1)
		b.AddOrder(id, 1000000, 10, Buy, Limit)
		b.CancelOrder(id, 0)
	}
	orders, levels := b.PoolStats()
	if orders.InUse != 0 {
		t.Errorf("order pool in-use = %d, want 0", orders.InUse)
	}
	if levels.InUse != 0 {
		t.Errorf("level pool in-use = %d, want 0", levels.InUse)
	}
	// Steady-state churn must not carve new records each round.
	if orders.TotalAllocated > 2 {
		t.Errorf("order pool allocated %d records for serial churn", orders.TotalAllocated)
	}
}
