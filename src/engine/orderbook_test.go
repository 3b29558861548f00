package engine_test

import (
	"testing"

	"matchbook/src/engine"
)

func limitOrder(id uint64, symbol string, side engine.OrderSide, price, quantity int64) *engine.Order {
	return engine.NewOrder(id, 1, symbol, side, engine.TypeLimit, price, quantity)
}

// TestOrderBookAddOrder tests that an admitted order is retrievable
func TestOrderBookAddOrder(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	order := limitOrder(1, "AAPL", engine.SideBuy, 15050, 100)
	if !book.AddOrder(order) {
		t.Fatal("AddOrder should succeed")
	}

	retrieved, exists := book.GetOrder(1)
	if !exists {
		t.Fatal("Order should exist in order book")
	}
	if retrieved.ID != 1 {
		t.Errorf("Expected order ID 1, got: %d", retrieved.ID)
	}
	if retrieved.Timestamp == 0 {
		t.Error("Admission should assign an arrival timestamp")
	}
}

// TestOrderBookRejections tests every validation failure of AddOrder
func TestOrderBookRejections(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	cases := []struct {
		name  string
		order *engine.Order
	}{
		{"symbol mismatch", limitOrder(1, "GOOG", engine.SideBuy, 15050, 100)},
		{"zero id", limitOrder(0, "AAPL", engine.SideBuy, 15050, 100)},
		{"non-positive quantity", limitOrder(2, "AAPL", engine.SideBuy, 15050, 0)},
		{"limit without price", limitOrder(3, "AAPL", engine.SideBuy, 0, 100)},
		{"stop order", engine.NewOrder(4, 1, "AAPL", engine.SideBuy, engine.TypeStop, 15050, 100)},
		{"stop limit order", engine.NewOrder(5, 1, "AAPL", engine.SideBuy, engine.TypeStopLimit, 15050, 100)},
	}

	for _, tc := range cases {
		if book.AddOrder(tc.order) {
			t.Errorf("%s: AddOrder should fail", tc.name)
		}
		if tc.order.GetStatus() != engine.StatusRejected {
			t.Errorf("%s: expected REJECTED, got: %s", tc.name, tc.order.GetStatus())
		}
	}

	if book.GetOrderCount() != 0 {
		t.Errorf("Rejected orders must not enter the book, count: %d", book.GetOrderCount())
	}
}

// TestOrderBookDuplicateID tests that a duplicate id is rejected with no
// state change
func TestOrderBookDuplicateID(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	if !book.AddOrder(limitOrder(1, "AAPL", engine.SideBuy, 15050, 100)) {
		t.Fatal("First AddOrder should succeed")
	}

	duplicate := limitOrder(1, "AAPL", engine.SideBuy, 15060, 200)
	if book.AddOrder(duplicate) {
		t.Fatal("Duplicate id should be rejected")
	}

	if book.BestBid() != 15050 {
		t.Errorf("Book state must be unchanged, best bid: %d", book.BestBid())
	}
	if book.GetOrderCount() != 1 {
		t.Errorf("Expected 1 resting order, got: %d", book.GetOrderCount())
	}
}

// TestOrderBookBestBidAsk tests top-of-book prices and quantities
func TestOrderBookBestBidAsk(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	book.AddOrder(limitOrder(1, "AAPL", engine.SideBuy, 15050, 100))
	book.AddOrder(limitOrder(2, "AAPL", engine.SideBuy, 15060, 200))
	book.AddOrder(limitOrder(3, "AAPL", engine.SideBuy, 15040, 300))

	if book.BestBid() != 15060 {
		t.Errorf("Expected best bid 15060, got: %d", book.BestBid())
	}
	if book.BestBidQuantity() != 200 {
		t.Errorf("Expected best bid quantity 200, got: %d", book.BestBidQuantity())
	}

	book.AddOrder(limitOrder(4, "AAPL", engine.SideSell, 15070, 100))
	book.AddOrder(limitOrder(5, "AAPL", engine.SideSell, 15080, 200))
	book.AddOrder(limitOrder(6, "AAPL", engine.SideSell, 15065, 300))

	if book.BestAsk() != 15065 {
		t.Errorf("Expected best ask 15065, got: %d", book.BestAsk())
	}
	if book.BestAskQuantity() != 300 {
		t.Errorf("Expected best ask quantity 300, got: %d", book.BestAskQuantity())
	}

	// invariant: after AddOrder returns, the book is never crossed
	if book.BestBid() >= book.BestAsk() {
		t.Errorf("Book crossed: bid %d >= ask %d", book.BestBid(), book.BestAsk())
	}
}

// TestOrderBookEmptyBestOfBook tests that an empty side reports zero
func TestOrderBookEmptyBestOfBook(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	if book.BestBid() != 0 || book.BestAsk() != 0 {
		t.Error("Empty book should report 0 for best bid and ask")
	}
	if book.BestBidQuantity() != 0 || book.BestAskQuantity() != 0 {
		t.Error("Empty book should report 0 quantities")
	}
}

// TestSimpleCross tests S1: a crossing limit pair trades at the resting
// order's price and empties the book
func TestSimpleCross(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	buy := limitOrder(1, "AAPL", engine.SideBuy, 15000, 100)
	sell := limitOrder(2, "AAPL", engine.SideSell, 14900, 100)

	book.AddOrder(buy)
	book.AddOrder(sell)

	trades := book.GetRecentTrades(10)
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got: %d", len(trades))
	}
	if trades[0].TradeQuantity != 100 {
		t.Errorf("Expected trade quantity 100, got: %d", trades[0].TradeQuantity)
	}
	// resting-price policy: the buy arrived first, so its price applies
	if trades[0].TradePrice != 15000 {
		t.Errorf("Expected trade price 15000, got: %d", trades[0].TradePrice)
	}

	if buy.GetStatus() != engine.StatusFilled {
		t.Errorf("Buy should be FILLED, got: %s", buy.GetStatus())
	}
	if sell.GetStatus() != engine.StatusFilled {
		t.Errorf("Sell should be FILLED, got: %s", sell.GetStatus())
	}
	if book.GetOrderCount() != 0 {
		t.Errorf("Book should be empty, count: %d", book.GetOrderCount())
	}
	if book.BestBid() != 0 || book.BestAsk() != 0 {
		t.Error("Both sides should be empty after the cross")
	}
}

// TestPartialFillWithQueue tests S2: price-time priority across a level
// with a remainder left at the front of the queue
func TestPartialFillWithQueue(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	first := limitOrder(1, "AAPL", engine.SideBuy, 15000, 100)
	second := limitOrder(2, "AAPL", engine.SideBuy, 15000, 50)
	aggressor := limitOrder(3, "AAPL", engine.SideSell, 15000, 120)

	book.AddOrder(first)
	book.AddOrder(second)
	book.AddOrder(aggressor)

	trades := book.GetRecentTrades(10)
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got: %d", len(trades))
	}
	// newest first: trades[1] is the earlier execution against id=1
	if trades[1].TradeQuantity != 100 {
		t.Errorf("First trade should be 100, got: %d", trades[1].TradeQuantity)
	}
	if trades[0].TradeQuantity != 20 {
		t.Errorf("Second trade should be 20, got: %d", trades[0].TradeQuantity)
	}

	if first.GetStatus() != engine.StatusFilled {
		t.Errorf("id=1 should be FILLED, got: %s", first.GetStatus())
	}
	if second.GetStatus() != engine.StatusPartiallyFilled {
		t.Errorf("id=2 should be PARTIALLY_FILLED, got: %s", second.GetStatus())
	}
	if second.GetFilledQuantity() != 20 {
		t.Errorf("id=2 filled should be 20, got: %d", second.GetFilledQuantity())
	}
	if second.RemainingQuantity() != 30 {
		t.Errorf("id=2 remaining should be 30, got: %d", second.RemainingQuantity())
	}
	if aggressor.GetStatus() != engine.StatusFilled {
		t.Errorf("id=3 should be FILLED, got: %s", aggressor.GetStatus())
	}

	if book.BestBid() != 15000 {
		t.Errorf("Best bid should be 15000, got: %d", book.BestBid())
	}
	if book.BestBidQuantity() != 30 {
		t.Errorf("Best bid quantity should be 30, got: %d", book.BestBidQuantity())
	}
}

// TestCancelOutOfFIFO tests S3: a cancelled order is skipped by matching
func TestCancelOutOfFIFO(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	first := limitOrder(1, "AAPL", engine.SideBuy, 15000, 100)
	second := limitOrder(2, "AAPL", engine.SideBuy, 15000, 100)
	third := limitOrder(3, "AAPL", engine.SideBuy, 15000, 100)

	book.AddOrder(first)
	book.AddOrder(second)
	book.AddOrder(third)

	if !book.CancelOrder(2) {
		t.Fatal("CancelOrder should succeed")
	}
	if second.GetStatus() != engine.StatusCancelled {
		t.Errorf("id=2 should be CANCELLED, got: %s", second.GetStatus())
	}

	// a sell for 150 consumes id=1 fully, then 50 from id=3
	book.AddOrder(limitOrder(4, "AAPL", engine.SideSell, 15000, 150))

	if first.GetStatus() != engine.StatusFilled {
		t.Errorf("id=1 should be FILLED, got: %s", first.GetStatus())
	}
	if third.GetFilledQuantity() != 50 {
		t.Errorf("id=3 should have filled 50, got: %d", third.GetFilledQuantity())
	}
	if second.GetFilledQuantity() != 0 {
		t.Errorf("Cancelled id=2 must not trade, filled: %d", second.GetFilledQuantity())
	}
}

// TestCancelIdempotence tests that the second cancel returns false and
// leaves the book as the first left it
func TestCancelIdempotence(t *testing.T) {
	book := engine.NewOrderBook("AAPL")
	book.AddOrder(limitOrder(1, "AAPL", engine.SideBuy, 15000, 100))

	if !book.CancelOrder(1) {
		t.Fatal("First cancel should return true")
	}
	if book.CancelOrder(1) {
		t.Fatal("Second cancel should return false")
	}
	if book.GetOrderCount() != 0 {
		t.Errorf("Expected empty book, count: %d", book.GetOrderCount())
	}
	if book.CancelOrder(99) {
		t.Error("Cancel of an unknown id should return false")
	}
}

// TestModifyLosesTimePriority tests S4: a touched order drops behind its
// peers even when nothing numeric changed
func TestModifyLosesTimePriority(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	first := limitOrder(1, "AAPL", engine.SideBuy, 15000, 100)
	second := limitOrder(2, "AAPL", engine.SideBuy, 15000, 100)

	book.AddOrder(first)
	book.AddOrder(second)

	if !book.ModifyOrder(1, 100, 15000) {
		t.Fatal("ModifyOrder should succeed")
	}

	book.AddOrder(limitOrder(3, "AAPL", engine.SideSell, 15000, 100))

	if second.GetStatus() != engine.StatusFilled {
		t.Errorf("id=2 should fill first after id=1 was modified, got: %s", second.GetStatus())
	}
	if first.GetFilledQuantity() != 0 {
		t.Errorf("id=1 should not have traded, filled: %d", first.GetFilledQuantity())
	}
}

// TestModifyMovesPriceLevel tests that modify re-inserts at the new price
// and can cross the market
func TestModifyMovesPriceLevel(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	bid := limitOrder(1, "AAPL", engine.SideBuy, 14900, 100)
	ask := limitOrder(2, "AAPL", engine.SideSell, 15000, 100)
	book.AddOrder(bid)
	book.AddOrder(ask)

	// raising the bid to the ask price triggers a match
	if !book.ModifyOrder(1, 100, 15000) {
		t.Fatal("ModifyOrder should succeed")
	}

	if bid.GetStatus() != engine.StatusFilled {
		t.Errorf("Modified bid should be FILLED, got: %s", bid.GetStatus())
	}
	if ask.GetStatus() != engine.StatusFilled {
		t.Errorf("Ask should be FILLED, got: %s", ask.GetStatus())
	}
	if book.GetOrderCount() != 0 {
		t.Errorf("Book should be empty, count: %d", book.GetOrderCount())
	}
}

// TestModifyUnknownAndInvalid tests the failure returns of ModifyOrder
func TestModifyUnknownAndInvalid(t *testing.T) {
	book := engine.NewOrderBook("AAPL")
	book.AddOrder(limitOrder(1, "AAPL", engine.SideBuy, 15000, 100))

	if book.ModifyOrder(42, 100, 15000) {
		t.Error("Modify of unknown id should return false")
	}
	if book.ModifyOrder(1, 100, 0) {
		t.Error("Modify to non-positive price should return false")
	}
	if book.BestBid() != 15000 {
		t.Errorf("Failed modify must not change the book, best bid: %d", book.BestBid())
	}
}

// TestMarketOrderAgainstThinBook tests S5: a market order sweeps the book
// and cancels its residual instead of resting
func TestMarketOrderAgainstThinBook(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	book.AddOrder(limitOrder(1, "AAPL", engine.SideSell, 10000, 10))
	book.AddOrder(limitOrder(2, "AAPL", engine.SideSell, 10100, 20))

	market := engine.NewOrder(3, 1, "AAPL", engine.SideBuy, engine.TypeMarket, 0, 50)
	if !book.AddOrder(market) {
		t.Fatal("Market order should be admitted")
	}

	trades := book.GetRecentTrades(10)
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got: %d", len(trades))
	}

	var total int64
	for _, trade := range trades {
		total += trade.TradeQuantity
	}
	if total != 30 {
		t.Errorf("Expected 30 shares traded, got: %d", total)
	}

	// each sweep executes at the resting ask's own price
	if trades[1].TradePrice != 10000 || trades[0].TradePrice != 10100 {
		t.Errorf("Expected prices 10000 then 10100, got: %d then %d",
			trades[1].TradePrice, trades[0].TradePrice)
	}

	if market.GetStatus() != engine.StatusCancelled {
		t.Errorf("Residual market order should be CANCELLED, got: %s", market.GetStatus())
	}
	if market.GetFilledQuantity() != 30 {
		t.Errorf("Market order should have filled 30, got: %d", market.GetFilledQuantity())
	}
	if _, exists := book.GetOrder(3); exists {
		t.Error("Market order must not rest in the book")
	}
	if book.BestAsk() != 0 {
		t.Error("Ask side should be empty")
	}
}

// TestMarketOrderEmptyBook tests a market order with no opposite side
func TestMarketOrderEmptyBook(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	market := engine.NewOrder(1, 1, "AAPL", engine.SideSell, engine.TypeMarket, 0, 100)
	if !book.AddOrder(market) {
		t.Fatal("Market order should be admitted even against an empty book")
	}

	if market.GetStatus() != engine.StatusCancelled {
		t.Errorf("Expected CANCELLED, got: %s", market.GetStatus())
	}
	if book.GetTradeCount() != 0 {
		t.Errorf("No trade should be recorded, got: %d", book.GetTradeCount())
	}
}

// TestExactMatchEmptiesLevels tests that an exact-quantity cross removes
// both levels entirely
func TestExactMatchEmptiesLevels(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	buy := limitOrder(1, "AAPL", engine.SideBuy, 15000, 100)
	sell := limitOrder(2, "AAPL", engine.SideSell, 15000, 100)
	book.AddOrder(buy)
	book.AddOrder(sell)

	if buy.GetStatus() != engine.StatusFilled || sell.GetStatus() != engine.StatusFilled {
		t.Error("Both orders should be FILLED")
	}
	if len(book.GetBids(10)) != 0 || len(book.GetAsks(10)) != 0 {
		t.Error("Both levels should be removed")
	}
}

// TestDepthAggregation tests GetBids/GetAsks level ordering and
// remaining-quantity sums
func TestDepthAggregation(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	book.AddOrder(limitOrder(1, "AAPL", engine.SideBuy, 15050, 100))
	book.AddOrder(limitOrder(2, "AAPL", engine.SideBuy, 15050, 200))
	book.AddOrder(limitOrder(3, "AAPL", engine.SideBuy, 15040, 300))
	book.AddOrder(limitOrder(4, "AAPL", engine.SideSell, 15060, 150))
	book.AddOrder(limitOrder(5, "AAPL", engine.SideSell, 15070, 250))

	bids := book.GetBids(10)
	if len(bids) != 2 {
		t.Fatalf("Expected 2 bid levels, got: %d", len(bids))
	}
	if bids[0].Price != 15050 || bids[0].Quantity != 300 {
		t.Errorf("Expected (15050, 300), got: (%d, %d)", bids[0].Price, bids[0].Quantity)
	}
	if bids[1].Price != 15040 || bids[1].Quantity != 300 {
		t.Errorf("Expected (15040, 300), got: (%d, %d)", bids[1].Price, bids[1].Quantity)
	}

	asks := book.GetAsks(10)
	if len(asks) != 2 {
		t.Fatalf("Expected 2 ask levels, got: %d", len(asks))
	}
	if asks[0].Price != 15060 {
		t.Errorf("Expected lowest ask first, got: %d", asks[0].Price)
	}

	// depth cap
	if got := len(book.GetBids(1)); got != 1 {
		t.Errorf("Expected 1 level with depth 1, got: %d", got)
	}
}

// TestSnapshotTopTen tests that GetSnapshot caps each side at ten levels
func TestSnapshotTopTen(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	for i := 0; i < 15; i++ {
		book.AddOrder(limitOrder(uint64(i+1), "AAPL", engine.SideBuy, 15000-int64(i*10), 100))
		book.AddOrder(limitOrder(uint64(i+100), "AAPL", engine.SideSell, 16000+int64(i*10), 100))
	}

	snapshot := book.GetSnapshot()

	if snapshot.Symbol != "AAPL" {
		t.Errorf("Expected symbol AAPL, got: %s", snapshot.Symbol)
	}
	if snapshot.Timestamp == 0 {
		t.Error("Snapshot should carry a capture time")
	}
	if len(snapshot.Bids) != 10 {
		t.Errorf("Expected 10 bid levels, got: %d", len(snapshot.Bids))
	}
	if len(snapshot.Asks) != 10 {
		t.Errorf("Expected 10 ask levels, got: %d", len(snapshot.Asks))
	}
	if snapshot.Bids[0].Price != 15000 {
		t.Errorf("Expected best bid first, got: %d", snapshot.Bids[0].Price)
	}
	if snapshot.Asks[0].Price != 16000 {
		t.Errorf("Expected best ask first, got: %d", snapshot.Asks[0].Price)
	}
}

// TestTradeAccounting tests invariants 6 and 7: counters and notional
// volume reflect the recorded trades exactly
func TestTradeAccounting(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	book.AddOrder(limitOrder(1, "AAPL", engine.SideBuy, 15000, 100))
	book.AddOrder(limitOrder(2, "AAPL", engine.SideSell, 15000, 60))
	book.AddOrder(limitOrder(3, "AAPL", engine.SideSell, 15000, 40))

	if book.GetTradeCount() != 2 {
		t.Fatalf("Expected 2 trades, got: %d", book.GetTradeCount())
	}

	var notional int64
	for _, trade := range book.GetRecentTrades(10) {
		notional += trade.TradePrice * trade.TradeQuantity
	}
	if book.GetTotalVolume() != notional {
		t.Errorf("Volume %d != sum of price*qty %d", book.GetTotalVolume(), notional)
	}
	if book.GetTotalVolume() != 15000*100 {
		t.Errorf("Expected volume %d, got: %d", int64(15000*100), book.GetTotalVolume())
	}
}

// TestRecentTradesNewestFirst tests ordering and the count cap
func TestRecentTradesNewestFirst(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	for i := 0; i < 5; i++ {
		book.AddOrder(limitOrder(uint64(i*2+1), "AAPL", engine.SideBuy, 15000, 10))
		book.AddOrder(limitOrder(uint64(i*2+2), "AAPL", engine.SideSell, 15000, 10))
	}

	trades := book.GetRecentTrades(3)
	if len(trades) != 3 {
		t.Fatalf("Expected 3 trades, got: %d", len(trades))
	}
	for i := 0; i < len(trades)-1; i++ {
		if trades[i].TradeID < trades[i+1].TradeID {
			t.Errorf("Trades should be newest first: id %d before %d",
				trades[i].TradeID, trades[i+1].TradeID)
		}
	}
	if trades[0].TradeID != 5 {
		t.Errorf("Newest trade should have id 5, got: %d", trades[0].TradeID)
	}
}

// TestTradeHandlerObservesMatches tests that the registered observer sees
// every trade in match order
func TestTradeHandlerObservesMatches(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	var seen []engine.MarketData
	book.SetTradeHandler(func(trade engine.MarketData) {
		seen = append(seen, trade)
	})

	book.AddOrder(limitOrder(1, "AAPL", engine.SideBuy, 15000, 100))
	book.AddOrder(limitOrder(2, "AAPL", engine.SideBuy, 15000, 50))
	book.AddOrder(limitOrder(3, "AAPL", engine.SideSell, 15000, 120))

	if len(seen) != 2 {
		t.Fatalf("Expected 2 observed trades, got: %d", len(seen))
	}
	if seen[0].TradeQuantity != 100 || seen[1].TradeQuantity != 20 {
		t.Errorf("Expected quantities 100 then 20, got: %d then %d",
			seen[0].TradeQuantity, seen[1].TradeQuantity)
	}
	if seen[0].Type != engine.DataTrade {
		t.Errorf("Observed events should be TRADE, got: %s", seen[0].Type)
	}
}

// TestTradeHandlerPanicIsolated tests that a faulting observer cannot
// corrupt book state
func TestTradeHandlerPanicIsolated(t *testing.T) {
	book := engine.NewOrderBook("AAPL")
	book.SetTradeHandler(func(engine.MarketData) {
		panic("observer bug")
	})

	buy := limitOrder(1, "AAPL", engine.SideBuy, 15000, 100)
	sell := limitOrder(2, "AAPL", engine.SideSell, 15000, 100)
	book.AddOrder(buy)
	book.AddOrder(sell)

	if buy.GetStatus() != engine.StatusFilled || sell.GetStatus() != engine.StatusFilled {
		t.Error("Matching must complete despite the observer panic")
	}
	if book.GetTradeCount() != 1 {
		t.Errorf("Trade should be recorded, count: %d", book.GetTradeCount())
	}
}
