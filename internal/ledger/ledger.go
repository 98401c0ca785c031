// Package ledger tracks per-symbol positions and PnL from a stream of fills.
//
// Lot accounting is gross: buys grow the long lot, sells grow the short lot,
// and the two sides coexist without netting. A fill against an existing
// opposite-side lot crystallizes realized PnL but leaves both lots open, so
// realized PnL is the figure for instantaneous covering at the fill price.
package ledger

import (
	"sort"
	"sync"
	"time"

	"mmcore/internal/book"
)

func now() book.Timestamp {
	return book.Timestamp(time.Now().UnixNano())
}

// Position is the per-symbol lot state.
type Position struct {
	Symbol        book.SymbolID  `json:"symbol"`
	LongQuantity  book.Quantity  `json:"long_quantity"`
	ShortQuantity book.Quantity  `json:"short_quantity"`
	AvgLongPrice  book.Price     `json:"avg_long_price"`
	AvgShortPrice book.Price     `json:"avg_short_price"`
	RealizedPnL   int64          `json:"realized_pnl"`
	UnrealizedPnL int64          `json:"unrealized_pnl"`
	LastUpdate    book.Timestamp `json:"last_update"`
}

// Net returns long minus short, signed.
func (p *Position) Net() int64 {
	return int64(p.LongQuantity) - int64(p.ShortQuantity)
}

// Total returns long plus short.
func (p *Position) Total() int64 {
	return int64(p.LongQuantity) + int64(p.ShortQuantity)
}

// Flat reports whether both lots are empty.
func (p *Position) Flat() bool {
	return p.LongQuantity == 0 && p.ShortQuantity == 0
}

// TotalPnL returns realized plus unrealized.
func (p *Position) TotalPnL() int64 {
	return p.RealizedPnL + p.UnrealizedPnL
}

// Trade is one recorded fill.
type Trade struct {
	Symbol    book.SymbolID  `json:"symbol"`
	Price     book.Price     `json:"price"`
	Quantity  book.Quantity  `json:"quantity"`
	Side      book.Side      `json:"side"`
	Timestamp book.Timestamp `json:"timestamp"`
	OrderID   book.OrderID   `json:"order_id"`
}

// Limits are the pre-trade position and risk bounds.
type Limits struct {
	MaxPositionSize  int64 // long + short
	MaxLongPosition  int64 // net ceiling for buys
	MaxShortPosition int64 // net floor magnitude for sells
	MaxDailyLoss     int64
	MaxDrawdown      int64
}

// Stats is a consistent summary of the ledger taken under one lock.
type Stats struct {
	Symbols       int   `json:"symbols"`
	Trades        int   `json:"trades"`
	RealizedPnL   int64 `json:"realized_pnl"`
	UnrealizedPnL int64 `json:"unrealized_pnl"`
	TotalPnL      int64 `json:"total_pnl"`
}

// Ledger is the position and PnL tracker. One coarse lock guards all state;
// no method performs I/O while holding it.
type Ledger struct {
	mu        sync.Mutex
	positions map[book.SymbolID]*Position
	trades    map[book.SymbolID][]Trade
	limits    Limits
}

// New creates an empty ledger with the given limits.
func New(limits Limits) *Ledger {
	return &Ledger{
		positions: make(map[book.SymbolID]*Position),
		trades:    make(map[book.SymbolID][]Trade),
		limits:    limits,
	}
}

// Limits returns the configured limits.
func (l *Ledger) Limits() Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limits
}

// RecordTrade appends the fill to history, realizes PnL against the existing
// opposite-side lot, and folds the fill into the side's weighted-average lot.
// Limit checks are a separate pre-trade call; recording always succeeds.
func (l *Ledger) RecordTrade(symbol book.SymbolID, price book.Price, qty book.Quantity, side book.Side, orderID book.OrderID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := now()
	l.trades[symbol] = append(l.trades[symbol], Trade{
		Symbol:    symbol,
		Price:     price,
		Quantity:  qty,
		Side:      side,
		Timestamp: ts,
		OrderID:   orderID,
	})

	p := l.positionLocked(symbol)

	// Realized PnL is computed on the opposite lot before the update, and the
	// opposite lot is not reduced. Both sides stay open.
	q := int64(qty)
	if side == book.Buy {
		if p.ShortQuantity > 0 {
			closable := min64(q, int64(p.ShortQuantity))
			p.RealizedPnL += int64(p.AvgShortPrice-price) * closable
		}
		if p.LongQuantity == 0 {
			p.AvgLongPrice = price
		} else {
			lq := int64(p.LongQuantity)
			p.AvgLongPrice = book.Price((int64(p.AvgLongPrice)*lq + int64(price)*q) / (lq + q))
		}
		p.LongQuantity += qty
	} else {
		if p.LongQuantity > 0 {
			closable := min64(q, int64(p.LongQuantity))
			p.RealizedPnL += int64(price-p.AvgLongPrice) * closable
		}
		if p.ShortQuantity == 0 {
			p.AvgShortPrice = price
		} else {
			sq := int64(p.ShortQuantity)
			p.AvgShortPrice = book.Price((int64(p.AvgShortPrice)*sq + int64(price)*q) / (sq + q))
		}
		p.ShortQuantity += qty
	}
	p.LastUpdate = ts
	return true
}

// UpdateUnrealizedPnL marks the symbol's open lots to the given price.
func (l *Ledger) UpdateUnrealizedPnL(symbol book.SymbolID, mark book.Price) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return
	}
	markLocked(p, mark)
}

// UpdateAllUnrealizedPnL marks every symbol present in marks.
func (l *Ledger) UpdateAllUnrealizedPnL(marks map[book.SymbolID]book.Price) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for symbol, mark := range marks {
		if p, ok := l.positions[symbol]; ok {
			markLocked(p, mark)
		}
	}
}

func markLocked(p *Position, mark book.Price) {
	p.UnrealizedPnL = int64(mark-p.AvgLongPrice)*int64(p.LongQuantity) +
		int64(p.AvgShortPrice-mark)*int64(p.ShortQuantity)
	p.LastUpdate = now()
}

// CheckPositionLimits reports whether a fill of qty on side would keep the
// symbol inside the configured bounds. For a symbol with no position only
// the total size bound applies.
func (l *Ledger) CheckPositionLimits(symbol book.SymbolID, qty book.Quantity, side book.Side) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := int64(qty)
	p, ok := l.positions[symbol]
	if !ok {
		return q <= l.limits.MaxPositionSize
	}

	net := p.Net()
	if side == book.Buy && net+q > l.limits.MaxLongPosition {
		return false
	}
	if side == book.Sell && net-q < -l.limits.MaxShortPosition {
		return false
	}
	if p.Total()+q > l.limits.MaxPositionSize {
		return false
	}
	return true
}

// CheckRiskLimits reports whether aggregate PnL is inside the loss bounds.
// Drawdown is compared against the same total PnL as the daily loss rather
// than against a running peak.
func (l *Ledger) CheckRiskLimits() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := int64(0)
	for _, p := range l.positions {
		total += p.TotalPnL()
	}
	if total < -l.limits.MaxDailyLoss {
		return false
	}
	if total < -l.limits.MaxDrawdown {
		return false
	}
	return true
}

// GetPosition returns a copy of the symbol's position.
func (l *Ledger) GetPosition(symbol book.SymbolID) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// AllPositions returns copies of every position, sorted by symbol.
func (l *Ledger) AllPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// TradeHistory returns the symbol's fills in record order.
func (l *Ledger) TradeHistory(symbol book.SymbolID) []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	history := l.trades[symbol]
	out := make([]Trade, len(history))
	copy(out, history)
	return out
}

// AllTrades returns every recorded fill merged across symbols, sorted by
// timestamp.
func (l *Ledger) AllTrades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Trade
	for _, history := range l.trades {
		out = append(out, history...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// ClearTradeHistory drops all recorded fills, keeping positions.
func (l *Ledger) ClearTradeHistory() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = make(map[book.SymbolID][]Trade)
}

// TotalRealizedPnL sums realized PnL across symbols.
func (l *Ledger) TotalRealizedPnL() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := int64(0)
	for _, p := range l.positions {
		total += p.RealizedPnL
	}
	return total
}

// TotalUnrealizedPnL sums unrealized PnL across symbols.
func (l *Ledger) TotalUnrealizedPnL() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := int64(0)
	for _, p := range l.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// TotalPnL sums realized plus unrealized PnL across symbols.
func (l *Ledger) TotalPnL() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := int64(0)
	for _, p := range l.positions {
		total += p.TotalPnL()
	}
	return total
}

// GetStats returns a consistent summary of the ledger.
func (l *Ledger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{Symbols: len(l.positions)}
	for _, p := range l.positions {
		s.RealizedPnL += p.RealizedPnL
		s.UnrealizedPnL += p.UnrealizedPnL
	}
	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	for _, history := range l.trades {
		s.Trades += len(history)
	}
	return s
}

// Reset clears all positions and trade history.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[book.SymbolID]*Position)
	l.trades = make(map[book.SymbolID][]Trade)
}

// Restore installs previously persisted positions, replacing any current
// state for those symbols. Trade history is not restored.
func (l *Ledger) Restore(positions []Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range positions {
		cp := p
		l.positions[p.Symbol] = &cp
	}
}

func (l *Ledger) positionLocked(symbol book.SymbolID) *Position {
	p, ok := l.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		l.positions[symbol] = p
	}
	return p
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
