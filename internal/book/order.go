package book

import (
	"math"
	"time"
)

// Core scalar types shared across the engine.
//
// Price is a signed fixed-point integer: 1 unit = 1/10000 of the quote
// currency. Quantities are unsigned 32-bit. Timestamps are nanoseconds.
type (
	SymbolID  uint16
	OrderID   uint64
	Price     int64
	Quantity  uint32
	Timestamp int64
)

// PriceFromDollars converts a dollar amount to fixed-point price units.
func PriceFromDollars(d float64) Price {
	return Price(math.Round(d * 10000))
}

// PriceToDollars converts fixed-point price units to dollars.
func PriceToDollars(p Price) float64 {
	return float64(p) / 10000
}

func now() Timestamp {
	return Timestamp(time.Now().UnixNano())
}

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side an aggressor on s consumes liquidity from.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType uint8

const (
	Market OrderType = iota
	Limit
	Stop
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	}
	return "unknown"
}

type OrderStatus uint8

const (
	Pending OrderStatus = iota
	Active
	// Filled marks an order whose remaining quantity reached zero, whether by
	// execution or by a full cancel. Either way the record is released back to
	// the pool and the id slot is freed.
	Filled
	Cancelled
	Rejected
)

func (st OrderStatus) String() string {
	switch st {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Order is a resting order in a book. Records are pool-managed: a pointer
// must not be retained past the order reaching a terminal status.
type Order struct {
	ID             OrderID
	Symbol         SymbolID
	Price          Price
	Quantity       Quantity
	FilledQuantity Quantity // consumed quantity; cancels count as consumption
	Side           Side
	Type           OrderType
	Status         OrderStatus
	Timestamp      Timestamp // last transition

	level *Level // back-reference for O(1) detach; nil when not resting
}

// Remaining returns the quantity still available at the order's level.
func (o *Order) Remaining() Quantity {
	return o.Quantity - o.FilledQuantity
}

// Level aggregates all resting orders at one price on one side.
type Level struct {
	Price         Price
	TotalQuantity Quantity
	OrderCount    uint32
	LastUpdate    Timestamp

	queue []*Order // arrival order; execution distributes fills FIFO
}
