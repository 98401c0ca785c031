// Package engine drives the market-making core: it routes executions
// book-first then ledger, notifies strategies, and runs the quote tick loop.
package engine

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mmcore/internal/book"
	"mmcore/internal/ledger"
	"mmcore/internal/strategy"
)

// FillFunc observes recorded fills. Observers run on the caller's goroutine
// after the ledger has absorbed the fill; they must not call back into the
// engine.
type FillFunc func(ledger.Trade)

// Config configures an Engine.
type Config struct {
	TickInterval time.Duration
	Strategies   []strategy.Strategy
}

// Engine owns the book registry and ledger and coordinates the strategies.
// Book and ledger are independently locked; the engine issues the book
// operation first and the ledger update second, so readers may briefly see a
// fill in one but not the other.
type Engine struct {
	books      *book.Registry
	ledger     *ledger.Ledger
	strategies []strategy.Strategy
	tick       time.Duration
	log        *logrus.Entry

	mu        sync.Mutex
	observers []FillFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an engine around the given books and ledger.
func New(books *book.Registry, l *ledger.Ledger, cfg Config, log *logrus.Logger) *Engine {
	return &Engine{
		books:      books,
		ledger:     l,
		strategies: cfg.Strategies,
		tick:       cfg.TickInterval,
		log:        log.WithField("component", "engine"),
		stopCh:     make(chan struct{}),
	}
}

// Books returns the engine's book registry.
func (e *Engine) Books() *book.Registry { return e.books }

// Ledger returns the engine's position ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// OnFill registers an observer for recorded fills.
func (e *Engine) OnFill(fn FillFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Execute runs an aggressor against the symbol's book and, if anything
// traded, records the fill in the ledger and notifies strategies and fill
// observers. Returns false if nothing traded.
func (e *Engine) Execute(symbol book.SymbolID, price book.Price, qty book.Quantity, side book.Side, orderID book.OrderID) bool {
	if !e.books.ExecuteTrade(symbol, price, qty, side) {
		return false
	}

	e.ledger.RecordTrade(symbol, price, qty, side, orderID)
	ts := book.Timestamp(time.Now().UnixNano())

	e.mu.Lock()
	observers := e.observers
	e.mu.Unlock()
	if len(observers) > 0 {
		trade := ledger.Trade{
			Symbol: symbol, Price: price, Quantity: qty,
			Side: side, Timestamp: ts, OrderID: orderID,
		}
		for _, fn := range observers {
			fn(trade)
		}
	}

	pos, _ := e.ledger.GetPosition(symbol)
	stats := e.ledger.GetStats()
	for _, s := range e.strategies {
		s.OnTrade(symbol, price, qty, side, ts)
		s.OnPositionUpdate(symbol, pos, stats, ts)
	}

	if !e.ledger.CheckRiskLimits() {
		e.log.WithFields(logrus.Fields{
			"symbol":    symbol,
			"total_pnl": stats.TotalPnL,
		}).Warn("risk limits breached")
	}
	return true
}

// Tick runs one quote cycle: every strategy re-quotes, then open positions
// are marked to the current mids.
func (e *Engine) Tick() {
	now := book.Timestamp(time.Now().UnixNano())
	for _, s := range e.strategies {
		s.UpdateQuotes(e.books, e.ledger, now)
	}
	e.markToMid()
}

// markToMid marks every symbol with a two-sided book to its mid price.
func (e *Engine) markToMid() {
	marks := make(map[book.SymbolID]book.Price)
	for _, sym := range e.books.ActiveSymbols() {
		b, ok := e.books.Lookup(sym)
		if !ok {
			continue
		}
		if mid := b.Mid(); mid != 0 {
			marks[sym] = mid
		}
	}
	if len(marks) > 0 {
		e.ledger.UpdateAllUnrealizedPnL(marks)
	}
}

// Start launches the tick loop. No-op if the tick interval is zero.
func (e *Engine) Start() {
	if e.tick <= 0 {
		return
	}
	e.wg.Add(1)
	go e.loop()
	e.log.WithField("tick", e.tick.String()).Info("engine started")
}

func (e *Engine) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Stop terminates the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	e.log.Info("engine stopped")
}
