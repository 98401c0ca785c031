// Package persist snapshots ledger positions into a fixed-layout backing
// file. This is a snapshot, not a journal: a crash between flushes loses the
// intervening fills. Only positions are persisted.
package persist

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"mmcore/internal/book"
	"mmcore/internal/ledger"
)

// Each position is one fixed 56-byte little-endian record:
//
//	0   symbol        uint16
//	2   reserved
//	4   long_qty      uint32
//	8   short_qty     uint32
//	12  reserved
//	16  avg_long      int64
//	24  avg_short     int64
//	32  realized      int64
//	40  unrealized    int64
//	48  last_update   int64
//
// A record with symbol == 0 is unused and skipped on load.
const recordSize = 56

// DefaultCapacity is the initial number of record slots.
const DefaultCapacity = 1024

// Store is a position snapshot file. The backing region is a dense array of
// record slots; flush rewrites it in full and doubles the region when the
// position count outgrows it.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
}

// Open creates or opens a snapshot file with at least capacity slots. An
// existing larger file keeps its size.
func Open(path string, capacity int) (*Store, error) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	s := &Store{path: path, capacity: capacity}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	if have := int(info.Size()) / recordSize; have > s.capacity {
		s.capacity = have
	}
	if err := f.Truncate(int64(s.capacity) * recordSize); err != nil {
		return nil, fmt.Errorf("size snapshot: %w", err)
	}
	return s, nil
}

// Capacity returns the current number of record slots.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Flush writes the positions densely from the start of the region and
// zeroes the remaining slots. The region doubles until the positions fit.
func (s *Store) Flush(positions []ledger.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.capacity < len(positions) {
		s.capacity *= 2
	}

	buf := make([]byte, s.capacity*recordSize)
	for i, p := range positions {
		encode(buf[i*recordSize:(i+1)*recordSize], p)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(len(buf))); err != nil {
		return fmt.Errorf("size snapshot: %w", err)
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return f.Sync()
}

// Load reads all used record slots back. Slots with symbol == 0 are skipped.
func (s *Store) Load() ([]ledger.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var out []ledger.Position
	for off := 0; off+recordSize <= len(buf); off += recordSize {
		rec := buf[off : off+recordSize]
		if binary.LittleEndian.Uint16(rec[0:2]) == 0 {
			continue
		}
		out = append(out, decode(rec))
	}
	return out, nil
}

func encode(rec []byte, p ledger.Position) {
	binary.LittleEndian.PutUint16(rec[0:2], uint16(p.Symbol))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(p.LongQuantity))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(p.ShortQuantity))
	binary.LittleEndian.PutUint64(rec[16:24], uint64(p.AvgLongPrice))
	binary.LittleEndian.PutUint64(rec[24:32], uint64(p.AvgShortPrice))
	binary.LittleEndian.PutUint64(rec[32:40], uint64(p.RealizedPnL))
	binary.LittleEndian.PutUint64(rec[40:48], uint64(p.UnrealizedPnL))
	binary.LittleEndian.PutUint64(rec[48:56], uint64(p.LastUpdate))
}

func decode(rec []byte) ledger.Position {
	return ledger.Position{
		Symbol:        book.SymbolID(binary.LittleEndian.Uint16(rec[0:2])),
		LongQuantity:  book.Quantity(binary.LittleEndian.Uint32(rec[4:8])),
		ShortQuantity: book.Quantity(binary.LittleEndian.Uint32(rec[8:12])),
		AvgLongPrice:  book.Price(binary.LittleEndian.Uint64(rec[16:24])),
		AvgShortPrice: book.Price(binary.LittleEndian.Uint64(rec[24:32])),
		RealizedPnL:   int64(binary.LittleEndian.Uint64(rec[32:40])),
		UnrealizedPnL: int64(binary.LittleEndian.Uint64(rec[40:48])),
		LastUpdate:    book.Timestamp(binary.LittleEndian.Uint64(rec[48:56])),
	}
}
