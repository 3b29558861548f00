package engine

import (
	"sync"
	"sync/atomic"
)

type OrderSide uint8

const (
	SideBuy OrderSide = iota
	SideSell
)

func (s OrderSide) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

type OrderType uint8

const (
	TypeMarket OrderType = iota
	TypeLimit
	TypeStop
	TypeStopLimit
)

func (t OrderType) String() string {
	switch t {
	case TypeMarket:
		return "MARKET"
	case TypeLimit:
		return "LIMIT"
	case TypeStop:
		return "STOP"
	default:
		return "STOP_LIMIT"
	}
}

type OrderStatus uint8

const (
	StatusPending OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "REJECTED"
	}
}

// Order is the unit of intent flowing through the engine. IDs are assigned
// by the submitter and must be unique; the book rejects duplicates.
// edge case: prices are int64 cents to avoid floating-point drift in matching
type Order struct {
	ID             uint64
	ClientID       uint64
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Price          int64 // cents; required for LIMIT, ignored for MARKET
	Quantity       int64
	FilledQuantity int64 // accessed atomically
	Timestamp      int64 // nanoseconds, assigned when the order enters a book
	status         OrderStatus
	statusMu       sync.Mutex
}

func NewOrder(id, clientID uint64, symbol string, side OrderSide, orderType OrderType, price, quantity int64) *Order {
	return &Order{
		ID:       id,
		ClientID: clientID,
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Price:    price,
		Quantity: quantity,
		status:   StatusPending,
	}
}

func (o *Order) GetFilledQuantity() int64 {
	return atomic.LoadInt64(&o.FilledQuantity)
}

func (o *Order) RemainingQuantity() int64 {
	return o.Quantity - atomic.LoadInt64(&o.FilledQuantity)
}

func (o *Order) IsFilled() bool {
	return atomic.LoadInt64(&o.FilledQuantity) >= o.Quantity
}

// Fill records an execution of quantity shares and advances the status
// machine: PENDING -> PARTIALLY_FILLED -> FILLED.
func (o *Order) Fill(quantity int64) {
	newFilled := atomic.AddInt64(&o.FilledQuantity, quantity)

	o.statusMu.Lock()
	if newFilled >= o.Quantity {
		o.status = StatusFilled
	} else {
		o.status = StatusPartiallyFilled
	}
	o.statusMu.Unlock()
}

func (o *Order) GetStatus() OrderStatus {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.status
}

func (o *Order) SetStatus(status OrderStatus) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	o.status = status
}
