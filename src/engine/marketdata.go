package engine

import "time"

type MarketDataType uint8

const (
	DataTrade MarketDataType = iota
	DataQuote
	DataOrderBookUpdate
	DataTick
)

func (t MarketDataType) String() string {
	switch t {
	case DataTrade:
		return "TRADE"
	case DataQuote:
		return "QUOTE"
	case DataOrderBookUpdate:
		return "ORDER_BOOK_UPDATE"
	default:
		return "TICK"
	}
}

// MarketData is the tagged event record shared by the matching core and the
// feed layer. Only the fields for the tagged type are meaningful.
type MarketData struct {
	SequenceNumber uint64
	Symbol         string
	Type           MarketDataType
	Timestamp      int64 // nanoseconds

	// TRADE
	TradePrice    int64
	TradeQuantity int64
	TradeID       uint64

	// QUOTE
	BidPrice    int64
	BidQuantity int64
	AskPrice    int64
	AskQuantity int64

	// ORDER_BOOK_UPDATE
	Price    int64
	Quantity int64
	IsBid    bool
}

// BookLevel is one aggregated price level: price and the summed remaining
// quantity of every resting order at that price.
type BookLevel struct {
	Price    int64
	Quantity int64
}

// OrderBookSnapshot is a point-in-time value copy of the top of a book,
// capped at ten levels per side.
type OrderBookSnapshot struct {
	Symbol    string
	Timestamp int64
	Bids      []BookLevel
	Asks      []BookLevel
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
