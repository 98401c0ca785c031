package book

import "sync"

// Registry owns one Book per symbol, created lazily on first use. The
// registry lock only guards the symbol map; it is never held while calling
// into a book, so slow book operations on one symbol do not block lookups
// for another.
type Registry struct {
	mu    sync.RWMutex
	books map[SymbolID]*Book
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[SymbolID]*Book)}
}

// Get returns the book for symbol, creating it if needed.
func (r *Registry) Get(symbol SymbolID) *Book {
	r.mu.RLock()
	b, ok := r.books[symbol]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.books[symbol]; ok {
		return b
	}
	b = New(symbol)
	r.books[symbol] = b
	return b
}

// Lookup returns the book for symbol without creating one.
func (r *Registry) Lookup(symbol SymbolID) (*Book, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[symbol]
	return b, ok
}

// ActiveSymbols returns all symbols with a book, sorted ascending.
func (r *Registry) ActiveSymbols() []SymbolID {
	r.mu.RLock()
	symbols := make([]SymbolID, 0, len(r.books))
	for s := range r.books {
		symbols = append(symbols, s)
	}
	r.mu.RUnlock()

	sortSymbols(symbols)
	return symbols
}

// Count returns the number of books.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}

// AddOrder routes to the symbol's book, creating it on first use.
func (r *Registry) AddOrder(symbol SymbolID, id OrderID, price Price, qty Quantity, side Side, typ OrderType) bool {
	return r.Get(symbol).AddOrder(id, price, qty, side, typ)
}

// CancelOrder routes to the symbol's book. Unknown symbols return false
// without creating a book.
func (r *Registry) CancelOrder(symbol SymbolID, id OrderID, qty Quantity) bool {
	b, ok := r.Lookup(symbol)
	if !ok {
		return false
	}
	return b.CancelOrder(id, qty)
}

// ModifyOrder routes to the symbol's book. Unknown symbols return false
// without creating a book.
func (r *Registry) ModifyOrder(symbol SymbolID, id OrderID, newPrice Price, newQty Quantity) bool {
	b, ok := r.Lookup(symbol)
	if !ok {
		return false
	}
	return b.ModifyOrder(id, newPrice, newQty)
}

// ExecuteTrade routes to the symbol's book. Unknown symbols return false
// without creating a book.
func (r *Registry) ExecuteTrade(symbol SymbolID, price Price, qty Quantity, side Side) bool {
	b, ok := r.Lookup(symbol)
	if !ok {
		return false
	}
	return b.ExecuteTrade(price, qty, side)
}
