package strategy

import (
	"math"

	"mmcore/internal/book"
	"mmcore/internal/ledger"
)

// InventorySkewedConfig configures an InventorySkewed strategy.
type InventorySkewedConfig struct {
	Symbols      []book.SymbolID
	Base         book.Price
	MinSpread    book.Price
	MaxSpread    book.Price
	MaxInventory int64 // net inventory at which skew saturates
	Size         book.Quantity
}

// InventorySkewed quotes around a base price shifted against the current net
// inventory: a long position skews the mid down to bias sells, a short
// position skews it up. The spread widens linearly with the skew magnitude
// from MinSpread to MaxSpread.
type InventorySkewed struct {
	cfg InventorySkewedConfig

	lastUpdate book.Timestamp
}

// NewInventorySkewed creates the strategy. MaxInventory must be positive.
func NewInventorySkewed(cfg InventorySkewedConfig) *InventorySkewed {
	return &InventorySkewed{cfg: cfg}
}

func (s *InventorySkewed) Name() string { return "inventory-skewed" }

// BidID returns the deterministic bid order id for the i-th symbol.
func (s *InventorySkewed) BidID(i int) book.OrderID {
	return book.OrderID(skewedIDBase + 2*i + 1)
}

// AskID returns the deterministic ask order id for the i-th symbol.
func (s *InventorySkewed) AskID(i int) book.OrderID {
	return book.OrderID(skewedIDBase + 2*i + 2)
}

// Quote returns the bid and ask prices for the given net inventory.
func (s *InventorySkewed) Quote(net int64) (bid, ask book.Price) {
	skew := float64(net) / float64(s.cfg.MaxInventory)
	mid := s.cfg.Base - book.Price(skew*float64(s.cfg.MaxSpread)/2)
	spread := s.cfg.MinSpread +
		book.Price(math.Abs(skew)*float64(s.cfg.MaxSpread-s.cfg.MinSpread))
	return mid - spread/2, mid + spread/2
}

// UpdateQuotes reads each symbol's net position from the ledger and
// cancel-and-replaces both quotes at the skewed prices.
func (s *InventorySkewed) UpdateQuotes(books *book.Registry, l *ledger.Ledger, now book.Timestamp) {
	for i, sym := range s.cfg.Symbols {
		var net int64
		if pos, ok := l.GetPosition(sym); ok {
			net = pos.Net()
		}
		bid, ask := s.Quote(net)

		bidID, askID := s.BidID(i), s.AskID(i)
		books.CancelOrder(sym, bidID, 0)
		books.CancelOrder(sym, askID, 0)

		books.AddOrder(sym, bidID, bid, s.cfg.Size, book.Buy, book.Limit)
		books.AddOrder(sym, askID, ask, s.cfg.Size, book.Sell, book.Limit)
	}
	s.lastUpdate = now
}

func (s *InventorySkewed) OnTrade(symbol book.SymbolID, price book.Price, qty book.Quantity, side book.Side, now book.Timestamp) {
}

func (s *InventorySkewed) OnPositionUpdate(symbol book.SymbolID, pos ledger.Position, stats ledger.Stats, now book.Timestamp) {
}
