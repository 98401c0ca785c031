// Package strategy contains the quoting strategies that sit above the book
// and ledger. A strategy is driven synchronously by the engine tick; it holds
// no locks of its own and issues plain book operations to re-quote.
package strategy

import (
	"mmcore/internal/book"
	"mmcore/internal/ledger"
)

// Strategy is the contract a quoting strategy implements. UpdateQuotes is
// called once per tick; the notification hooks fire after the engine applies
// a fill to the book and ledger respectively. Calls arrive from a single
// goroutine.
type Strategy interface {
	Name() string

	// UpdateQuotes rebuilds the strategy's quotes for its configured symbols.
	UpdateQuotes(books *book.Registry, l *ledger.Ledger, now book.Timestamp)

	// OnTrade is invoked for every fill on a symbol the strategy quotes.
	OnTrade(symbol book.SymbolID, price book.Price, qty book.Quantity, side book.Side, now book.Timestamp)

	// OnPositionUpdate is invoked after the ledger absorbs a fill.
	OnPositionUpdate(symbol book.SymbolID, pos ledger.Position, stats ledger.Stats, now book.Timestamp)
}
