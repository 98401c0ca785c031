// Package store provides SQLite archival for fills and position snapshots.
// It sits behind the engine's fill observer hook and is never called on the
// book or ledger hot path.
package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mmcore/internal/book"
	"mmcore/internal/ledger"
)

// Store archives fills and position snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// New creates a Store and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		symbol INTEGER NOT NULL,
		side TEXT NOT NULL,  -- 'buy' or 'sell'
		price INTEGER NOT NULL,  -- 1/10000 quote units
		quantity INTEGER NOT NULL,
		order_id INTEGER NOT NULL,
		ts INTEGER NOT NULL  -- nanoseconds
	);

	CREATE TABLE IF NOT EXISTS positions (
		symbol INTEGER PRIMARY KEY,
		long_qty INTEGER NOT NULL DEFAULT 0,
		short_qty INTEGER NOT NULL DEFAULT 0,
		avg_long INTEGER NOT NULL DEFAULT 0,
		avg_short INTEGER NOT NULL DEFAULT 0,
		realized_pnl INTEGER NOT NULL DEFAULT 0,
		unrealized_pnl INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_ts ON fills(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// FillRecord is one archived fill row.
type FillRecord struct {
	ID        string
	Symbol    book.SymbolID
	Side      string
	Price     book.Price
	Quantity  book.Quantity
	OrderID   book.OrderID
	Timestamp book.Timestamp
}

// RecordFill archives one fill.
func (s *Store) RecordFill(tr ledger.Trade) error {
	ts := tr.Timestamp
	if ts == 0 {
		ts = book.Timestamp(time.Now().UnixNano())
	}
	_, err := s.db.Exec(
		"INSERT INTO fills (id, symbol, side, price, quantity, order_id, ts) VALUES (?, ?, ?, ?, ?, ?, ?)",
		uuid.NewString(), int64(tr.Symbol), tr.Side.String(), int64(tr.Price),
		int64(tr.Quantity), int64(tr.OrderID), int64(ts),
	)
	return err
}

// RecentFills returns the most recent fills for a symbol, newest first.
func (s *Store) RecentFills(symbol book.SymbolID, limit int) ([]FillRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, symbol, side, price, quantity, order_id, ts FROM fills WHERE symbol = ? ORDER BY ts DESC LIMIT ?",
		int64(symbol), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		var sym, price, qty, orderID, ts int64
		if err := rows.Scan(&f.ID, &sym, &f.Side, &price, &qty, &orderID, &ts); err != nil {
			return nil, err
		}
		f.Symbol = book.SymbolID(sym)
		f.Price = book.Price(price)
		f.Quantity = book.Quantity(qty)
		f.OrderID = book.OrderID(orderID)
		f.Timestamp = book.Timestamp(ts)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// FillCount returns the number of archived fills.
func (s *Store) FillCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM fills").Scan(&n)
	return n, err
}

// SavePositions upserts a snapshot of the given positions in one
// transaction.
func (s *Store) SavePositions(positions []ledger.Position) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range positions {
		_, err := tx.Exec(
			`INSERT INTO positions (symbol, long_qty, short_qty, avg_long, avg_short, realized_pnl, unrealized_pnl, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol) DO UPDATE SET
			   long_qty = excluded.long_qty,
			   short_qty = excluded.short_qty,
			   avg_long = excluded.avg_long,
			   avg_short = excluded.avg_short,
			   realized_pnl = excluded.realized_pnl,
			   unrealized_pnl = excluded.unrealized_pnl,
			   updated_at = excluded.updated_at`,
			int64(p.Symbol), int64(p.LongQuantity), int64(p.ShortQuantity),
			int64(p.AvgLongPrice), int64(p.AvgShortPrice),
			p.RealizedPnL, p.UnrealizedPnL, int64(p.LastUpdate),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadPositions reads back all archived positions, ordered by symbol.
func (s *Store) LoadPositions() ([]ledger.Position, error) {
	rows, err := s.db.Query(
		"SELECT symbol, long_qty, short_qty, avg_long, avg_short, realized_pnl, unrealized_pnl, updated_at FROM positions ORDER BY symbol",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []ledger.Position
	for rows.Next() {
		var p ledger.Position
		var sym, longQty, shortQty, avgLong, avgShort, updated int64
		if err := rows.Scan(&sym, &longQty, &shortQty, &avgLong, &avgShort,
			&p.RealizedPnL, &p.UnrealizedPnL, &updated); err != nil {
			return nil, err
		}
		p.Symbol = book.SymbolID(sym)
		p.LongQuantity = book.Quantity(longQty)
		p.ShortQuantity = book.Quantity(shortQty)
		p.AvgLongPrice = book.Price(avgLong)
		p.AvgShortPrice = book.Price(avgShort)
		p.LastUpdate = book.Timestamp(updated)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
