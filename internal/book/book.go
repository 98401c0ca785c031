// Package book implements the per-symbol limit order book: price-time level
// aggregation, add/cancel/modify, and the execute-against-book routine that
// walks levels in price order. Books are coarse-locked; every public method
// takes the instance lock for its full duration and derived queries recompute
// inside a single critical section.
package book

import (
	"sort"
	"sync"

	"github.com/google/btree"

	"mmcore/internal/pool"
)

const (
	defaultOrderPoolSize = 10000
	defaultLevelPoolSize = 1000

	// MaxDepth bounds depth snapshots when callers pass depth <= 0.
	MaxDepth = 50

	btreeDegree = 16
)

// Book is the order book for a single symbol.
//
// Bids and asks are kept in two B-trees with opposite comparators, so that
// Min() yields the best level on either side and an in-order walk is always
// best-first. Orders rest at FIFO per-level queues. Order and Level records
// are pool-managed and recycled when they leave the book.
type Book struct {
	symbol SymbolID

	mu     sync.Mutex
	bids   *btree.BTreeG[*Level] // Min() = highest price
	asks   *btree.BTreeG[*Level] // Min() = lowest price
	orders map[OrderID]*Order

	orderPool *pool.Pool[Order]
	levelPool *pool.Pool[Level]
}

// New creates an empty book for symbol with warm pools.
func New(symbol SymbolID) *Book {
	return &Book{
		symbol: symbol,
		bids: btree.NewG(btreeDegree, func(a, b *Level) bool {
			return a.Price > b.Price
		}),
		asks: btree.NewG(btreeDegree, func(a, b *Level) bool {
			return a.Price < b.Price
		}),
		orders:    make(map[OrderID]*Order),
		orderPool: pool.New[Order](defaultOrderPoolSize),
		levelPool: pool.New[Level](defaultLevelPoolSize),
	}
}

// Symbol returns the symbol this book trades.
func (b *Book) Symbol() SymbolID {
	return b.symbol
}

// AddOrder places a new resting order. It returns false if the id is already
// indexed. Marketable limit orders do not cross on add; consuming liquidity
// is ExecuteTrade's job.
func (b *Book) AddOrder(id OrderID, price Price, qty Quantity, side Side, typ OrderType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.orders[id]; dup {
		return false
	}

	o := b.orderPool.Get()
	*o = Order{
		ID:        id,
		Symbol:    b.symbol,
		Price:     price,
		Quantity:  qty,
		Side:      side,
		Type:      typ,
		Status:    Active,
		Timestamp: now(),
	}

	lvl := b.getOrCreateLevelLocked(price, side)
	lvl.queue = append(lvl.queue, o)
	lvl.TotalQuantity += o.Remaining()
	lvl.OrderCount++
	lvl.LastUpdate = o.Timestamp
	o.level = lvl

	b.orders[id] = o
	return true
}

// CancelOrder cancels qty of the order's remaining quantity; qty == 0 means
// cancel everything. Amounts above the remaining quantity clamp to it.
// A fully cancelled order is terminal and its record is recycled.
// Returns false if there is no active order with this id.
func (b *Book) CancelOrder(id OrderID, qty Quantity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok || o.Status != Active {
		return false
	}

	cancel := o.Remaining()
	if qty != 0 && qty < cancel {
		cancel = qty
	}

	// Cancelled quantity is booked as consumption, same as a fill.
	o.FilledQuantity += cancel
	o.level.TotalQuantity -= cancel
	o.level.LastUpdate = now()

	if o.Remaining() == 0 {
		b.retireLocked(o)
	}
	return true
}

// ModifyOrder reprices and resizes an active order, preserving its filled
// quantity. The remaining quantity moves to the level at newPrice; the old
// level is removed if it empties. A newQty below the filled quantity is
// rejected. If newQty equals the filled quantity the order has nothing left
// to rest and is retired.
func (b *Book) ModifyOrder(id OrderID, newPrice Price, newQty Quantity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok || o.Status != Active {
		return false
	}
	if newQty < o.FilledQuantity {
		return false
	}

	old := o.level
	old.TotalQuantity -= o.Remaining()
	removeFromQueue(old, o)
	old.OrderCount--
	old.LastUpdate = now()
	o.level = nil
	if old.TotalQuantity == 0 {
		b.dropLevelLocked(old, o.Side)
	}

	o.Price = newPrice
	o.Quantity = newQty
	o.Timestamp = now()

	if o.Remaining() == 0 {
		o.Status = Filled
		delete(b.orders, o.ID)
		b.orderPool.Put(o)
		return true
	}

	lvl := b.getOrCreateLevelLocked(newPrice, o.Side)
	lvl.queue = append(lvl.queue, o)
	lvl.TotalQuantity += o.Remaining()
	lvl.OrderCount++
	lvl.LastUpdate = o.Timestamp
	o.level = lvl
	return true
}

// ExecuteTrade consumes resting liquidity with an aggressor on side, walking
// the opposite book best-first and stopping at the price limit. Fills are
// distributed FIFO within each level. Returns true iff any quantity traded.
func (b *Book) ExecuteTrade(price Price, qty Quantity, side Side) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	opp := b.asks
	if side == Sell {
		opp = b.bids
	}

	remaining := qty
	for remaining > 0 {
		lvl, ok := opp.Min()
		if !ok {
			break
		}
		if side == Buy && lvl.Price > price {
			break
		}
		if side == Sell && lvl.Price < price {
			break
		}

		take := remaining
		if lvl.TotalQuantity < take {
			take = lvl.TotalQuantity
		}
		remaining -= take
		b.fillLevelLocked(lvl, take)

		if lvl.TotalQuantity == 0 {
			opp.Delete(lvl)
			b.levelPool.Put(lvl)
		}
	}
	return remaining < qty
}

// fillLevelLocked distributes take across the level's queue in arrival
// order, retiring orders as they fill.
func (b *Book) fillLevelLocked(lvl *Level, take Quantity) {
	ts := now()
	for take > 0 && len(lvl.queue) > 0 {
		o := lvl.queue[0]
		fill := o.Remaining()
		if take < fill {
			fill = take
		}
		o.FilledQuantity += fill
		lvl.TotalQuantity -= fill
		take -= fill

		if o.Remaining() == 0 {
			o.Status = Filled
			o.Timestamp = ts
			o.level = nil
			lvl.queue = lvl.queue[1:]
			lvl.OrderCount--
			delete(b.orders, o.ID)
			b.orderPool.Put(o)
		}
	}
	lvl.LastUpdate = ts
}

// retireLocked marks o terminal, detaches it from its level, and recycles
// the record. The level is dropped if it empties.
func (b *Book) retireLocked(o *Order) {
	o.Status = Filled
	o.Timestamp = now()

	lvl := o.level
	removeFromQueue(lvl, o)
	lvl.OrderCount--
	o.level = nil
	if lvl.TotalQuantity == 0 {
		b.dropLevelLocked(lvl, o.Side)
	}

	delete(b.orders, o.ID)
	b.orderPool.Put(o)
}

func (b *Book) dropLevelLocked(lvl *Level, side Side) {
	if side == Buy {
		b.bids.Delete(lvl)
	} else {
		b.asks.Delete(lvl)
	}
	b.levelPool.Put(lvl)
}

func (b *Book) getOrCreateLevelLocked(price Price, side Side) *Level {
	tree := b.bids
	if side == Sell {
		tree = b.asks
	}
	if lvl, ok := tree.Get(&Level{Price: price}); ok {
		return lvl
	}
	lvl := b.levelPool.Get()
	lvl.Price = price
	lvl.TotalQuantity = 0
	lvl.OrderCount = 0
	lvl.LastUpdate = now()
	lvl.queue = lvl.queue[:0] // recycled records keep their queue backing
	tree.ReplaceOrInsert(lvl)
	return lvl
}

func removeFromQueue(lvl *Level, o *Order) {
	for i, q := range lvl.queue {
		if q == o {
			lvl.queue = append(lvl.queue[:i], lvl.queue[i+1:]...)
			return
		}
	}
}

// LevelView is one (price, quantity) pair of a depth snapshot.
type LevelView struct {
	Price    Price    `json:"price"`
	Quantity Quantity `json:"quantity"`
}

// BestBid returns the price and quantity of the best bid, or (0, 0) if the
// bid side is empty.
func (b *Book) BestBid() (Price, Quantity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bestLocked(b.bids)
}

// BestAsk returns the price and quantity of the best ask, or (0, 0) if the
// ask side is empty.
func (b *Book) BestAsk() (Price, Quantity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bestLocked(b.asks)
}

// Mid returns the midpoint of the best bid and ask, or 0 if either side is
// empty.
func (b *Book) Mid() Price {
	b.mu.Lock()
	defer b.mu.Unlock()
	return midLocked(b.bids, b.asks)
}

// Spread returns best ask minus best bid, or 0 if either side is empty.
func (b *Book) Spread() Price {
	b.mu.Lock()
	defer b.mu.Unlock()
	return spreadLocked(b.bids, b.asks)
}

// Bids returns up to depth levels from the bid side, best-first. A depth of
// zero or below means MaxDepth.
func (b *Book) Bids(depth int) []LevelView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return depthLocked(b.bids, depth)
}

// Asks returns up to depth levels from the ask side, best-first. A depth of
// zero or below means MaxDepth.
func (b *Book) Asks(depth int) []LevelView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return depthLocked(b.asks, depth)
}

// GetOrder returns a copy of the order with this id, detached from the
// book's internals, or ok == false if no active order exists.
func (b *Book) GetOrder(id OrderID) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	view := *o
	view.level = nil
	return view, true
}

// Empty reports whether both sides have no levels.
func (b *Book) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.Len() == 0 && b.asks.Len() == 0
}

// Stats is a consistent summary of the book taken under one lock.
type Stats struct {
	TotalOrders  int   `json:"total_orders"`
	ActiveOrders int   `json:"active_orders"`
	BidLevels    int   `json:"bid_levels"`
	AskLevels    int   `json:"ask_levels"`
	BestBid      Price `json:"best_bid"`
	BestAsk      Price `json:"best_ask"`
	Mid          Price `json:"mid"`
	Spread       Price `json:"spread"`
}

// GetStats returns a consistent snapshot of the book's counters.
func (b *Book) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := 0
	for _, o := range b.orders {
		if o.Status == Active {
			active++
		}
	}
	bid, _ := bestLocked(b.bids)
	ask, _ := bestLocked(b.asks)
	return Stats{
		TotalOrders:  len(b.orders),
		ActiveOrders: active,
		BidLevels:    b.bids.Len(),
		AskLevels:    b.asks.Len(),
		BestBid:      bid,
		BestAsk:      ask,
		Mid:          midLocked(b.bids, b.asks),
		Spread:       spreadLocked(b.bids, b.asks),
	}
}

// PoolStats returns the order and level pool counters, for diagnostics.
func (b *Book) PoolStats() (orders, levels pool.Stats) {
	return b.orderPool.Stats(), b.levelPool.Stats()
}

func bestLocked(tree *btree.BTreeG[*Level]) (Price, Quantity) {
	lvl, ok := tree.Min()
	if !ok {
		return 0, 0
	}
	return lvl.Price, lvl.TotalQuantity
}

func midLocked(bids, asks *btree.BTreeG[*Level]) Price {
	bid, _ := bestLocked(bids)
	ask, _ := bestLocked(asks)
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

func spreadLocked(bids, asks *btree.BTreeG[*Level]) Price {
	bid, _ := bestLocked(bids)
	ask, _ := bestLocked(asks)
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

func depthLocked(tree *btree.BTreeG[*Level], depth int) []LevelView {
	if depth <= 0 {
		depth = MaxDepth
	}
	out := make([]LevelView, 0, depth)
	tree.Ascend(func(lvl *Level) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, LevelView{Price: lvl.Price, Quantity: lvl.TotalQuantity})
		return true
	})
	return out
}

// sortSymbols sorts symbol ids ascending; shared with the registry.
func sortSymbols(symbols []SymbolID) {
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
}
