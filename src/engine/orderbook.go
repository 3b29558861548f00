package engine

import (
	"sync"

	"github.com/google/btree"
)

// maxTradeHistory bounds the per-book trade ring; the oldest trade is
// evicted once the ring is full.
const maxTradeHistory = 1000

// snapshotDepth is the number of levels per side captured by GetSnapshot.
const snapshotDepth = 10

type PriceLevel struct {
	Price  int64
	Orders []*Order // FIFO by arrival time
}

func (l *PriceLevel) remaining() int64 {
	var total int64
	for _, o := range l.Orders {
		total += o.RemainingQuantity()
	}
	return total
}

// bidItem sorts descending so that tree.Min() is the highest bid.
type bidItem struct {
	level *PriceLevel
}

func (b *bidItem) Less(than btree.Item) bool {
	return b.level.Price > than.(*bidItem).level.Price
}

// askItem sorts ascending so that tree.Min() is the lowest ask.
type askItem struct {
	level *PriceLevel
}

func (a *askItem) Less(than btree.Item) bool {
	return a.level.Price < than.(*askItem).level.Price
}

// OrderBook is the per-symbol double-sided price ladder. All mutation runs
// under the book's write lock; books for different symbols never contend.
type OrderBook struct {
	symbol string

	bids *btree.BTree // highest price first
	asks *btree.BTree // lowest price first

	ordersByID map[uint64]*Order

	// circular trade history
	trades     []MarketData
	tradeNext  int
	tradeCount int

	totalTrades uint64
	totalVolume int64

	// onTrade receives every recorded trade, after the write lock is
	// released. A panicking handler is isolated from book state.
	onTrade func(MarketData)

	mu sync.RWMutex
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol:     symbol,
		bids:       btree.New(32),
		asks:       btree.New(32),
		ordersByID: make(map[uint64]*Order),
		trades:     make([]MarketData, maxTradeHistory),
	}
}

func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

// SetTradeHandler registers the observer invoked for each trade. Call
// before the book receives orders; the handler runs on the mutating
// goroutine after the book lock is released.
func (ob *OrderBook) SetTradeHandler(fn func(MarketData)) {
	ob.mu.Lock()
	ob.onTrade = fn
	ob.mu.Unlock()
}

// AddOrder admits an order into the book and runs matching. It rejects a
// nil order, a symbol mismatch, a duplicate id, a non-positive quantity, a
// LIMIT order with a non-positive price, and the stop types (tag only, no
// defined semantics). A false return leaves the book untouched and marks
// the order REJECTED.
func (ob *OrderBook) AddOrder(order *Order) bool {
	if order == nil {
		return false
	}
	if order.Symbol != ob.symbol || order.ID == 0 || order.Quantity <= 0 ||
		(order.Type == TypeLimit && order.Price <= 0) ||
		order.Type == TypeStop || order.Type == TypeStopLimit {
		order.SetStatus(StatusRejected)
		return false
	}

	ob.mu.Lock()
	if _, exists := ob.ordersByID[order.ID]; exists {
		ob.mu.Unlock()
		order.SetStatus(StatusRejected)
		return false
	}

	// Arrival time is assigned at admission, not at creation; it is the
	// authoritative tie-break within a price level.
	order.Timestamp = nowNanos()

	var executed []MarketData
	if order.Type == TypeMarket {
		executed = ob.matchMarketLocked(order)
	} else {
		ob.insertLocked(order)
		executed = ob.matchLocked()
	}
	handler := ob.onTrade
	ob.mu.Unlock()

	ob.emitTrades(handler, executed)
	return true
}

// CancelOrder removes a resting order and marks it CANCELLED. Returns
// false if the id is unknown; cancelling twice is safe.
func (ob *OrderBook) CancelOrder(orderID uint64) bool {
	ob.mu.Lock()
	order, exists := ob.ordersByID[orderID]
	if !exists {
		ob.mu.Unlock()
		return false
	}

	ob.unlinkLocked(order)
	ob.mu.Unlock()

	order.SetStatus(StatusCancelled)
	return true
}

// ModifyOrder amends quantity and price in one step: the order is removed,
// updated, stamped with a fresh arrival time (losing its queue position)
// and re-inserted, then matching runs. Returns false for an unknown id, a
// non-positive price, or a new quantity not above the filled quantity.
func (ob *OrderBook) ModifyOrder(orderID uint64, newQuantity, newPrice int64) bool {
	ob.mu.Lock()
	order, exists := ob.ordersByID[orderID]
	if !exists || newPrice <= 0 || newQuantity <= order.GetFilledQuantity() {
		ob.mu.Unlock()
		return false
	}

	ob.unlinkLocked(order)

	order.Quantity = newQuantity
	order.Price = newPrice
	order.Timestamp = nowNanos()

	ob.insertLocked(order)
	executed := ob.matchLocked()
	handler := ob.onTrade
	ob.mu.Unlock()

	ob.emitTrades(handler, executed)
	return true
}

// BestBid returns the highest resting bid price, 0 when the side is empty.
func (ob *OrderBook) BestBid() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if level := ob.bestBidLocked(); level != nil {
		return level.Price
	}
	return 0
}

// BestAsk returns the lowest resting ask price, 0 when the side is empty.
func (ob *OrderBook) BestAsk() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if level := ob.bestAskLocked(); level != nil {
		return level.Price
	}
	return 0
}

func (ob *OrderBook) BestBidQuantity() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if level := ob.bestBidLocked(); level != nil {
		return level.remaining()
	}
	return 0
}

func (ob *OrderBook) BestAskQuantity() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if level := ob.bestAskLocked(); level != nil {
		return level.remaining()
	}
	return 0
}

// GetBids returns up to levels aggregated bid levels, best (highest) first.
func (ob *OrderBook) GetBids(levels int) []BookLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	result := make([]BookLevel, 0, levels)
	ob.bids.Ascend(func(item btree.Item) bool {
		if len(result) >= levels {
			return false
		}
		level := item.(*bidItem).level
		result = append(result, BookLevel{Price: level.Price, Quantity: level.remaining()})
		return true
	})
	return result
}

// GetAsks returns up to levels aggregated ask levels, best (lowest) first.
func (ob *OrderBook) GetAsks(levels int) []BookLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	result := make([]BookLevel, 0, levels)
	ob.asks.Ascend(func(item btree.Item) bool {
		if len(result) >= levels {
			return false
		}
		level := item.(*askItem).level
		result = append(result, BookLevel{Price: level.Price, Quantity: level.remaining()})
		return true
	})
	return result
}

// GetSnapshot captures the top ten levels per side as a value copy, both
// sides under one read lock.
func (ob *OrderBook) GetSnapshot() OrderBookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	snapshot := OrderBookSnapshot{Symbol: ob.symbol, Timestamp: nowNanos(),
		Bids: make([]BookLevel, 0, snapshotDepth), Asks: make([]BookLevel, 0, snapshotDepth)}
	ob.bids.Ascend(func(item btree.Item) bool {
		level := item.(*bidItem).level
		snapshot.Bids = append(snapshot.Bids, BookLevel{Price: level.Price, Quantity: level.remaining()})
		return len(snapshot.Bids) < snapshotDepth
	})
	ob.asks.Ascend(func(item btree.Item) bool {
		level := item.(*askItem).level
		snapshot.Asks = append(snapshot.Asks, BookLevel{Price: level.Price, Quantity: level.remaining()})
		return len(snapshot.Asks) < snapshotDepth
	})
	return snapshot
}

// GetRecentTrades returns up to count trades, newest first.
func (ob *OrderBook) GetRecentTrades(count int) []MarketData {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if count > ob.tradeCount {
		count = ob.tradeCount
	}
	result := make([]MarketData, 0, count)
	for i := 0; i < count; i++ {
		idx := (ob.tradeNext - 1 - i + maxTradeHistory) % maxTradeHistory
		result = append(result, ob.trades[idx])
	}
	return result
}

// GetOrder returns a live order by id. The returned order is a read-only
// view; callers must not mutate it.
func (ob *OrderBook) GetOrder(orderID uint64) (*Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	order, exists := ob.ordersByID[orderID]
	return order, exists
}

func (ob *OrderBook) GetOrderCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.ordersByID)
}

func (ob *OrderBook) GetTradeCount() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.totalTrades
}

// GetTotalVolume is the cumulative notional, sum of price*quantity over
// every recorded trade, in cent units.
func (ob *OrderBook) GetTotalVolume() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.totalVolume
}

func (ob *OrderBook) bestBidLocked() *PriceLevel {
	if item := ob.bids.Min(); item != nil {
		return item.(*bidItem).level
	}
	return nil
}

func (ob *OrderBook) bestAskLocked() *PriceLevel {
	if item := ob.asks.Min(); item != nil {
		return item.(*askItem).level
	}
	return nil
}

// insertLocked appends the order at the tail of its price level, creating
// the level if absent. Arrival timestamps are monotone, so a plain append
// preserves time priority without re-sorting.
func (ob *OrderBook) insertLocked(order *Order) {
	ob.ordersByID[order.ID] = order

	if order.Side == SideBuy {
		probe := &bidItem{level: &PriceLevel{Price: order.Price}}
		if existing := ob.bids.Get(probe); existing != nil {
			level := existing.(*bidItem).level
			level.Orders = append(level.Orders, order)
			return
		}
		probe.level.Orders = []*Order{order}
		ob.bids.ReplaceOrInsert(probe)
		return
	}

	probe := &askItem{level: &PriceLevel{Price: order.Price}}
	if existing := ob.asks.Get(probe); existing != nil {
		level := existing.(*askItem).level
		level.Orders = append(level.Orders, order)
		return
	}
	probe.level.Orders = []*Order{order}
	ob.asks.ReplaceOrInsert(probe)
}

// unlinkLocked removes the order from its level FIFO and the id index,
// dropping the level if it became empty.
func (ob *OrderBook) unlinkLocked(order *Order) {
	if order.Side == SideBuy {
		probe := &bidItem{level: &PriceLevel{Price: order.Price}}
		if existing := ob.bids.Get(probe); existing != nil {
			level := existing.(*bidItem).level
			level.Orders = removeOrder(level.Orders, order.ID)
			if len(level.Orders) == 0 {
				ob.bids.Delete(probe)
			}
		}
	} else {
		probe := &askItem{level: &PriceLevel{Price: order.Price}}
		if existing := ob.asks.Get(probe); existing != nil {
			level := existing.(*askItem).level
			level.Orders = removeOrder(level.Orders, order.ID)
			if len(level.Orders) == 0 {
				ob.asks.Delete(probe)
			}
		}
	}
	delete(ob.ordersByID, order.ID)
}

func removeOrder(orders []*Order, orderID uint64) []*Order {
	for i, o := range orders {
		if o.ID == orderID {
			return append(orders[:i], orders[i+1:]...)
		}
	}
	return orders
}

// matchLocked runs price-time priority matching while the book is crossed.
// The best level on each side is re-queried from the btree after every
// erasure, so iteration never walks a mutated container.
//
// Trade price policy: the resting order's price, i.e. the price of the
// earlier-timestamped counterparty.
func (ob *OrderBook) matchLocked() []MarketData {
	var executed []MarketData

	for {
		bidLevel := ob.bestBidLocked()
		askLevel := ob.bestAskLocked()
		if bidLevel == nil || askLevel == nil || bidLevel.Price < askLevel.Price {
			break
		}

		buy := bidLevel.Orders[0]
		sell := askLevel.Orders[0]

		qty := buy.RemainingQuantity()
		if sellRemaining := sell.RemainingQuantity(); sellRemaining < qty {
			qty = sellRemaining
		}

		price := sell.Price
		if buy.Timestamp <= sell.Timestamp {
			price = buy.Price
		}

		executed = append(executed, ob.recordTradeLocked(price, qty))

		buy.Fill(qty)
		sell.Fill(qty)

		if buy.IsFilled() {
			bidLevel.Orders = bidLevel.Orders[1:]
			delete(ob.ordersByID, buy.ID)
		}
		if sell.IsFilled() {
			askLevel.Orders = askLevel.Orders[1:]
			delete(ob.ordersByID, sell.ID)
		}

		if len(bidLevel.Orders) == 0 {
			ob.bids.Delete(&bidItem{level: bidLevel})
		}
		if len(askLevel.Orders) == 0 {
			ob.asks.Delete(&askItem{level: askLevel})
		}
	}

	return executed
}

// matchMarketLocked sweeps a market order across the opposite side. The
// order is never rested: any residual once the opposite side is exhausted
// is cancelled. The order's price field plays no part.
func (ob *OrderBook) matchMarketLocked(order *Order) []MarketData {
	var executed []MarketData

	for !order.IsFilled() {
		var level *PriceLevel
		if order.Side == SideBuy {
			level = ob.bestAskLocked()
		} else {
			level = ob.bestBidLocked()
		}
		if level == nil {
			break
		}

		resting := level.Orders[0]

		qty := order.RemainingQuantity()
		if restingRemaining := resting.RemainingQuantity(); restingRemaining < qty {
			qty = restingRemaining
		}

		executed = append(executed, ob.recordTradeLocked(resting.Price, qty))

		order.Fill(qty)
		resting.Fill(qty)

		if resting.IsFilled() {
			level.Orders = level.Orders[1:]
			delete(ob.ordersByID, resting.ID)
			if len(level.Orders) == 0 {
				if order.Side == SideBuy {
					ob.asks.Delete(&askItem{level: level})
				} else {
					ob.bids.Delete(&bidItem{level: level})
				}
			}
		}
	}

	if !order.IsFilled() {
		order.SetStatus(StatusCancelled)
	}
	return executed
}

func (ob *OrderBook) recordTradeLocked(price, quantity int64) MarketData {
	ob.totalTrades++
	trade := MarketData{
		Type:          DataTrade,
		Symbol:        ob.symbol,
		Timestamp:     nowNanos(),
		TradePrice:    price,
		TradeQuantity: quantity,
		TradeID:       ob.totalTrades,
	}

	ob.trades[ob.tradeNext] = trade
	ob.tradeNext = (ob.tradeNext + 1) % maxTradeHistory
	if ob.tradeCount < maxTradeHistory {
		ob.tradeCount++
	}

	ob.totalVolume += price * quantity
	return trade
}

// emitTrades delivers trades to the registered observer. A fault in the
// observer is contained here; it cannot corrupt book state.
func (ob *OrderBook) emitTrades(handler func(MarketData), trades []MarketData) {
	if handler == nil || len(trades) == 0 {
		return
	}
	defer func() {
		_ = recover()
	}()
	for _, trade := range trades {
		handler(trade)
	}
}
