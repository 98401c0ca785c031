// Package scenario replays script files against the book registry and
// ledger. A script is a line-oriented command list; prices are written in
// dollars and converted to fixed-point units. Failures are reported with
// their line number and do not terminate the batch.
package scenario

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mmcore/internal/book"
	"mmcore/internal/ledger"
)

// LineError is one failed script line.
type LineError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Result summarizes one script run.
type Result struct {
	Name            string                       `json:"name"`
	Passed          bool                         `json:"passed"`
	Errors          []LineError                  `json:"errors,omitempty"`
	OrdersProcessed int                          `json:"orders_processed"`
	TradesExecuted  int                          `json:"trades_executed"`
	Duration        time.Duration                `json:"duration"`
	BookStats       map[book.SymbolID]book.Stats `json:"book_stats"`
	LedgerStats     ledger.Stats                 `json:"ledger_stats"`
}

// Stats aggregates across runs.
type Stats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Runner executes scenario scripts. Market and slippage-market orders only
// execute after an `enable matching` line; before that they parse and count
// but move nothing. Order ids seen on add are indexed to their symbol so the
// order-level commands (reduce, modify, replace, delete order) can route.
type Runner struct {
	books  *book.Registry
	ledger *ledger.Ledger
	log    *logrus.Entry

	matching bool
	symbols  map[book.OrderID]book.SymbolID
	stats    Stats
}

// NewRunner creates a runner over the given books and ledger.
func NewRunner(books *book.Registry, l *ledger.Ledger, log *logrus.Logger) *Runner {
	return &Runner{
		books:   books,
		ledger:  l,
		log:     log.WithField("component", "scenario"),
		symbols: make(map[book.OrderID]book.SymbolID),
	}
}

// MatchingEnabled reports whether an `enable matching` line has run.
func (r *Runner) MatchingEnabled() bool { return r.matching }

// Stats returns the aggregate run counters.
func (r *Runner) Stats() Stats { return r.stats }

// RunFile executes one script file.
func (r *Runner) RunFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return r.Run(f, name), nil
}

// RunDir executes every .txt script in the directory, sorted by name.
func (r *Runner) RunDir(dir string) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".txt" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		res, err := r.RunFile(p)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Run executes a script from a reader.
func (r *Runner) Run(src io.Reader, name string) Result {
	start := time.Now()
	res := Result{Name: name}

	scanner := bufio.NewScanner(src)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := r.executeLine(line, &res); err != nil {
			res.Errors = append(res.Errors, LineError{Line: lineNo, Message: err.Error()})
			r.log.WithFields(logrus.Fields{
				"scenario": name,
				"line":     lineNo,
			}).WithError(err).Error("scenario command failed")
		}
	}
	if err := scanner.Err(); err != nil {
		res.Errors = append(res.Errors, LineError{Line: lineNo, Message: err.Error()})
	}

	res.Passed = len(res.Errors) == 0
	res.Duration = time.Since(start)

	res.BookStats = make(map[book.SymbolID]book.Stats)
	for _, sym := range r.books.ActiveSymbols() {
		if b, ok := r.books.Lookup(sym); ok {
			res.BookStats[sym] = b.GetStats()
		}
	}
	res.LedgerStats = r.ledger.GetStats()

	r.stats.Total++
	if res.Passed {
		r.stats.Passed++
	} else {
		r.stats.Failed++
	}
	return res
}

func (r *Runner) executeLine(line string, res *Result) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch {
	case cmd == "enable" && matchWord(fields, 1, "matching"):
		r.matching = true
		return nil

	case cmd == "add" && matchWord(fields, 1, "symbol"):
		return r.addSymbol(fields[2:])
	case cmd == "delete" && matchWord(fields, 1, "symbol"):
		// Symbol removal is accepted but books are never deleted.
		_, err := parseArgs(fields[2:], 1)
		return err

	case cmd == "add" && matchWord(fields, 1, "book"):
		return r.addBook(fields[2:])
	case cmd == "delete" && matchWord(fields, 1, "book"):
		_, err := parseArgs(fields[2:], 1)
		return err

	case cmd == "add" && matchWord(fields, 1, "limit"):
		side, err := parseSide(fields, 2)
		if err != nil {
			return err
		}
		return r.addLimit(fields[3:], side, res)

	case cmd == "add" && matchWord(fields, 1, "market"):
		side, err := parseSide(fields, 2)
		if err != nil {
			return err
		}
		return r.addMarket(fields[3:], side, res)

	case cmd == "add" && matchWord(fields, 1, "slippage") && matchWord(fields, 2, "market"):
		side, err := parseSide(fields, 3)
		if err != nil {
			return err
		}
		return r.addSlippageMarket(fields[4:], side, res)

	case cmd == "reduce":
		return r.reduceOrder(fields[1:])
	case cmd == "modify":
		return r.modifyOrder(fields[1:])
	case cmd == "replace":
		return r.replaceOrder(fields[1:])
	case cmd == "delete" && matchWord(fields, 1, "order"):
		return r.deleteOrder(fields[2:])
	}
	return fmt.Errorf("unknown command %q", line)
}

func (r *Runner) addSymbol(args []string) error {
	// <id> <name>; the name is informational only.
	if len(args) < 2 {
		return fmt.Errorf("add symbol expects 2 arguments, got %d", len(args))
	}
	id, err := parseUint(args[0], 16)
	if err != nil {
		return err
	}
	r.books.Get(book.SymbolID(id))
	return nil
}

func (r *Runner) addBook(args []string) error {
	vals, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	r.books.Get(book.SymbolID(vals[0]))
	return nil
}

// addLimit handles `add limit {buy|sell} <order_id> <symbol_id> <price> <qty> [flags]`.
func (r *Runner) addLimit(args []string, side book.Side, res *Result) error {
	if len(args) < 4 {
		return fmt.Errorf("add limit expects 4 arguments, got %d", len(args))
	}
	orderID, err := parseUint(args[0], 64)
	if err != nil {
		return err
	}
	symbol, err := parseUint(args[1], 16)
	if err != nil {
		return err
	}
	price, err := parsePrice(args[2])
	if err != nil {
		return err
	}
	qty, err := parseUint(args[3], 32)
	if err != nil {
		return err
	}

	id := book.OrderID(orderID)
	sym := book.SymbolID(symbol)
	if !r.books.AddOrder(sym, id, price, book.Quantity(qty), side, book.Limit) {
		return fmt.Errorf("add limit rejected for order %d", id)
	}
	r.symbols[id] = sym
	res.OrdersProcessed++
	return nil
}

// addMarket handles `add market {buy|sell} <order_id> <symbol_id> <qty> [flags]`.
// The order executes at the opposite touch for the full requested quantity.
func (r *Runner) addMarket(args []string, side book.Side, res *Result) error {
	if len(args) < 3 {
		return fmt.Errorf("add market expects 3 arguments, got %d", len(args))
	}
	orderID, err := parseUint(args[0], 64)
	if err != nil {
		return err
	}
	symbol, err := parseUint(args[1], 16)
	if err != nil {
		return err
	}
	qty, err := parseUint(args[2], 32)
	if err != nil {
		return err
	}
	res.OrdersProcessed++

	if !r.matching {
		return nil
	}
	sym := book.SymbolID(symbol)
	b := r.books.Get(sym)

	var touch book.Price
	if side == book.Buy {
		touch, _ = b.BestAsk()
	} else {
		touch, _ = b.BestBid()
	}
	if touch == 0 {
		return nil
	}

	b.ExecuteTrade(touch, book.Quantity(qty), side)
	r.ledger.RecordTrade(sym, touch, book.Quantity(qty), side, book.OrderID(orderID))
	res.TradesExecuted++
	return nil
}

// addSlippageMarket handles
// `add slippage market {buy|sell} <order_id> <symbol_id> <qty> <slippage> [flags]`.
// A buy prices off the best bid plus slippage; a sell off the best ask minus.
func (r *Runner) addSlippageMarket(args []string, side book.Side, res *Result) error {
	if len(args) < 4 {
		return fmt.Errorf("add slippage market expects 4 arguments, got %d", len(args))
	}
	orderID, err := parseUint(args[0], 64)
	if err != nil {
		return err
	}
	symbol, err := parseUint(args[1], 16)
	if err != nil {
		return err
	}
	qty, err := parseUint(args[2], 32)
	if err != nil {
		return err
	}
	slippage, err := parsePrice(args[3])
	if err != nil {
		return err
	}
	res.OrdersProcessed++

	if !r.matching {
		return nil
	}
	sym := book.SymbolID(symbol)
	b := r.books.Get(sym)

	var exec book.Price
	if side == book.Buy {
		bid, _ := b.BestBid()
		if bid == 0 {
			return nil
		}
		exec = bid + slippage
	} else {
		ask, _ := b.BestAsk()
		if ask == 0 {
			return nil
		}
		exec = ask - slippage
	}

	b.ExecuteTrade(exec, book.Quantity(qty), side)
	r.ledger.RecordTrade(sym, exec, book.Quantity(qty), side, book.OrderID(orderID))
	res.TradesExecuted++
	return nil
}

// reduceOrder handles `reduce <order_id> <qty>` as a partial cancel.
func (r *Runner) reduceOrder(args []string) error {
	vals, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	id := book.OrderID(vals[0])
	sym, ok := r.symbols[id]
	if !ok {
		return fmt.Errorf("reduce: unknown order %d", id)
	}
	if !r.books.CancelOrder(sym, id, book.Quantity(vals[1])) {
		return fmt.Errorf("reduce rejected for order %d", id)
	}
	return nil
}

// modifyOrder handles `modify <order_id> <price> <qty>`.
func (r *Runner) modifyOrder(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("modify expects 3 arguments, got %d", len(args))
	}
	orderID, err := parseUint(args[0], 64)
	if err != nil {
		return err
	}
	price, err := parsePrice(args[1])
	if err != nil {
		return err
	}
	qty, err := parseUint(args[2], 32)
	if err != nil {
		return err
	}

	id := book.OrderID(orderID)
	sym, ok := r.symbols[id]
	if !ok {
		return fmt.Errorf("modify: unknown order %d", id)
	}
	if !r.books.ModifyOrder(sym, id, price, book.Quantity(qty)) {
		return fmt.Errorf("modify rejected for order %d", id)
	}
	return nil
}

// replaceOrder handles `replace <old_id> <new_id> <price> <qty>`: full cancel
// of the old order, fresh order with the new id on the same side.
func (r *Runner) replaceOrder(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("replace expects 4 arguments, got %d", len(args))
	}
	oldID64, err := parseUint(args[0], 64)
	if err != nil {
		return err
	}
	newID64, err := parseUint(args[1], 64)
	if err != nil {
		return err
	}
	price, err := parsePrice(args[2])
	if err != nil {
		return err
	}
	qty, err := parseUint(args[3], 32)
	if err != nil {
		return err
	}

	oldID, newID := book.OrderID(oldID64), book.OrderID(newID64)
	sym, ok := r.symbols[oldID]
	if !ok {
		return fmt.Errorf("replace: unknown order %d", oldID)
	}
	b := r.books.Get(sym)
	old, ok := b.GetOrder(oldID)
	if !ok {
		return fmt.Errorf("replace: order %d not active", oldID)
	}

	if !b.CancelOrder(oldID, 0) {
		return fmt.Errorf("replace: cancel rejected for order %d", oldID)
	}
	delete(r.symbols, oldID)

	if !b.AddOrder(newID, price, book.Quantity(qty), old.Side, book.Limit) {
		return fmt.Errorf("replace: add rejected for order %d", newID)
	}
	r.symbols[newID] = sym
	return nil
}

// deleteOrder handles `delete order <order_id>` as a full cancel.
func (r *Runner) deleteOrder(args []string) error {
	vals, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	id := book.OrderID(vals[0])
	sym, ok := r.symbols[id]
	if !ok {
		return fmt.Errorf("delete order: unknown order %d", id)
	}
	if !r.books.CancelOrder(sym, id, 0) {
		return fmt.Errorf("delete order rejected for order %d", id)
	}
	delete(r.symbols, id)
	return nil
}

func matchWord(fields []string, i int, word string) bool {
	return len(fields) > i && strings.ToLower(fields[i]) == word
}

func parseSide(fields []string, i int) (book.Side, error) {
	if len(fields) > i {
		switch strings.ToLower(fields[i]) {
		case "buy":
			return book.Buy, nil
		case "sell":
			return book.Sell, nil
		}
	}
	return 0, fmt.Errorf("expected buy or sell")
}

// parseArgs parses at least n unsigned integers from args.
func parseArgs(args []string, n int) ([]uint64, error) {
	if len(args) < n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	vals := make([]uint64, n)
	for i := 0; i < n; i++ {
		v, err := parseUint(args[i], 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

// parsePrice parses a dollar amount into fixed-point price units.
func parsePrice(s string) (book.Price, error) {
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price %q", s)
	}
	return book.PriceFromDollars(d), nil
}
