package strategy

import (
	"mmcore/internal/book"
	"mmcore/internal/ledger"
)

// Order ids are deterministic per symbol index so that the cancel on the
// next tick targets the prior quote without any id bookkeeping. A quote that
// was consumed in the meantime makes the cancel fail, which is ignored.
const (
	fixedIDBase  = 10000
	skewedIDBase = 20000
)

// FixedSpreadConfig configures a FixedSpread strategy.
type FixedSpreadConfig struct {
	Symbols []book.SymbolID
	Base    book.Price // quote midpoint
	Spread  book.Price // full bid-ask spread
	Size    book.Quantity
}

// FixedSpread quotes a symmetric bid and ask around a fixed base price,
// cancel-and-replace on every tick.
type FixedSpread struct {
	cfg FixedSpreadConfig

	fills      int
	lastUpdate book.Timestamp
}

// NewFixedSpread creates the strategy. The symbol set is fixed for the
// strategy's lifetime.
func NewFixedSpread(cfg FixedSpreadConfig) *FixedSpread {
	return &FixedSpread{cfg: cfg}
}

func (s *FixedSpread) Name() string { return "fixed-spread" }

// BidID returns the deterministic bid order id for the i-th symbol.
func (s *FixedSpread) BidID(i int) book.OrderID {
	return book.OrderID(fixedIDBase + 2*i + 1)
}

// AskID returns the deterministic ask order id for the i-th symbol.
func (s *FixedSpread) AskID(i int) book.OrderID {
	return book.OrderID(fixedIDBase + 2*i + 2)
}

// UpdateQuotes cancels the previous tick's quotes and places fresh ones at
// base ± spread/2.
func (s *FixedSpread) UpdateQuotes(books *book.Registry, l *ledger.Ledger, now book.Timestamp) {
	for i, sym := range s.cfg.Symbols {
		bidID, askID := s.BidID(i), s.AskID(i)

		books.CancelOrder(sym, bidID, 0)
		books.CancelOrder(sym, askID, 0)

		books.AddOrder(sym, bidID, s.cfg.Base-s.cfg.Spread/2, s.cfg.Size, book.Buy, book.Limit)
		books.AddOrder(sym, askID, s.cfg.Base+s.cfg.Spread/2, s.cfg.Size, book.Sell, book.Limit)
	}
	s.lastUpdate = now
}

func (s *FixedSpread) OnTrade(symbol book.SymbolID, price book.Price, qty book.Quantity, side book.Side, now book.Timestamp) {
	s.fills++
}

func (s *FixedSpread) OnPositionUpdate(symbol book.SymbolID, pos ledger.Position, stats ledger.Stats, now book.Timestamp) {
}

// Fills returns the number of fill notifications received.
func (s *FixedSpread) Fills() int { return s.fills }
