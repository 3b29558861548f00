package engine

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Config tunes the engine's worker pools and queues. Ring sizes must be
// powers of two.
type Config struct {
	MatchingWorkers    int
	MarketDataWorkers  int
	OrderRingSize      uint64
	MarketDataRingSize uint64
	BatchSize          int
	IdlePark           time.Duration
	MetricsSampleEvery time.Duration
}

func DefaultConfig() Config {
	return Config{
		MatchingWorkers:    4,
		MarketDataWorkers:  2,
		OrderRingSize:      65536,
		MarketDataRingSize: 65536,
		BatchSize:          100,
		IdlePark:           20 * time.Microsecond,
		MetricsSampleEvery: time.Second,
	}
}

// EngineMetrics aggregates monotonic counters across all books plus
// submission latency extrema in nanoseconds. Per-second rates are derived
// by the sampler goroutine.
type EngineMetrics struct {
	ordersProcessed   atomic.Uint64
	ordersRejected    atomic.Uint64
	tradesExecuted    atomic.Uint64
	marketDataUpdates atomic.Uint64

	totalLatencyNs atomic.Uint64
	minLatencyNs   atomic.Uint64
	maxLatencyNs   atomic.Uint64
	latencySamples atomic.Uint64

	ordersPerSecond     atomic.Uint64
	tradesPerSecond     atomic.Uint64
	marketDataPerSecond atomic.Uint64
}

func (m *EngineMetrics) OrdersProcessed() uint64   { return m.ordersProcessed.Load() }
func (m *EngineMetrics) OrdersRejected() uint64    { return m.ordersRejected.Load() }
func (m *EngineMetrics) TradesExecuted() uint64    { return m.tradesExecuted.Load() }
func (m *EngineMetrics) MarketDataUpdates() uint64 { return m.marketDataUpdates.Load() }
func (m *EngineMetrics) OrdersPerSecond() uint64   { return m.ordersPerSecond.Load() }
func (m *EngineMetrics) TradesPerSecond() uint64   { return m.tradesPerSecond.Load() }
func (m *EngineMetrics) MarketDataPerSecond() uint64 {
	return m.marketDataPerSecond.Load()
}

func (m *EngineMetrics) MinLatencyNs() uint64 {
	if m.latencySamples.Load() == 0 {
		return 0
	}
	return m.minLatencyNs.Load()
}

func (m *EngineMetrics) MaxLatencyNs() uint64 { return m.maxLatencyNs.Load() }

func (m *EngineMetrics) AverageLatencyNs() float64 {
	samples := m.latencySamples.Load()
	if samples == 0 {
		return 0
	}
	return float64(m.totalLatencyNs.Load()) / float64(samples)
}

func (m *EngineMetrics) observeLatency(ns uint64) {
	m.totalLatencyNs.Add(ns)
	m.latencySamples.Add(1)

	for {
		current := m.minLatencyNs.Load()
		if ns >= current || m.minLatencyNs.CompareAndSwap(current, ns) {
			break
		}
	}
	for {
		current := m.maxLatencyNs.Load()
		if ns <= current || m.maxLatencyNs.CompareAndSwap(current, ns) {
			break
		}
	}
}

func (m *EngineMetrics) reset() {
	m.ordersProcessed.Store(0)
	m.ordersRejected.Store(0)
	m.tradesExecuted.Store(0)
	m.marketDataUpdates.Store(0)
	m.totalLatencyNs.Store(0)
	m.minLatencyNs.Store(math.MaxUint64)
	m.maxLatencyNs.Store(0)
	m.latencySamples.Store(0)
	m.ordersPerSecond.Store(0)
	m.tradesPerSecond.Store(0)
	m.marketDataPerSecond.Store(0)
}

// MatchingEngine owns the ingress rings, the book registry and the worker
// pools that bind them. Orders flow submit -> order ring -> matching worker
// -> book; trades flow book -> market data ring -> market data worker ->
// observer callback.
//
// Both rings are SPSC. The engine serializes its many producers behind a
// submit mutex and its many consumers behind a drain mutex rather than
// silently treating the rings as MPMC.
type MatchingEngine struct {
	config   Config
	registry *BookRegistry

	orderRing      *RingBuffer[*Order]
	marketDataRing *RingBuffer[MarketData]

	submitMu  sync.Mutex // producers of orderRing
	drainMu   sync.Mutex // consumers of orderRing
	mdPushMu  sync.Mutex // producers of marketDataRing
	mdDrainMu sync.Mutex // consumers of marketDataRing

	metrics  EngineMetrics
	sequence atomic.Uint64 // market data sequence numbers

	callbackMu sync.RWMutex
	mdCallback func(MarketData)

	running  atomic.Bool
	shutdown atomic.Bool
	wg       sync.WaitGroup
}

func NewMatchingEngine(config Config) *MatchingEngine {
	e := &MatchingEngine{
		config:         config,
		orderRing:      NewRingBuffer[*Order](config.OrderRingSize),
		marketDataRing: NewRingBuffer[MarketData](config.MarketDataRingSize),
	}
	e.registry = NewBookRegistry(e.onTrade)
	e.metrics.minLatencyNs.Store(math.MaxUint64)
	return e
}

// Start spawns the worker pools. Returns false if the engine is already
// running.
func (e *MatchingEngine) Start() bool {
	if !e.running.CompareAndSwap(false, true) {
		return false
	}
	e.shutdown.Store(false)

	for i := 0; i < e.config.MatchingWorkers; i++ {
		e.wg.Add(1)
		go e.matchingWorker(i)
	}
	for i := 0; i < e.config.MarketDataWorkers; i++ {
		e.wg.Add(1)
		go e.marketDataWorker(i)
	}
	if e.config.MetricsSampleEvery > 0 {
		e.wg.Add(1)
		go e.metricsSampler()
	}

	log.Info().
		Int("matching_workers", e.config.MatchingWorkers).
		Int("market_data_workers", e.config.MarketDataWorkers).
		Uint64("order_ring_size", e.config.OrderRingSize).
		Msg("Matching engine started")

	return true
}

// Stop signals shutdown and joins every worker. Safe to call more than
// once; only the atomic flag flip happens before the join.
func (e *MatchingEngine) Stop() {
	if !e.running.Load() {
		return
	}

	e.shutdown.Store(true)
	e.wg.Wait()
	e.running.Store(false)

	log.Info().
		Uint64("orders_processed", e.metrics.OrdersProcessed()).
		Uint64("trades_executed", e.metrics.TradesExecuted()).
		Msg("Matching engine stopped")
}

func (e *MatchingEngine) IsRunning() bool {
	return e.running.Load()
}

// SubmitOrder enqueues an order for matching. A false return means the
// ring is full (backpressure) or the engine is not running; the order was
// not admitted and no state changed. Latency is measured at enqueue time,
// reflecting the contract with the submitter.
func (e *MatchingEngine) SubmitOrder(order *Order) bool {
	if !e.running.Load() || order == nil {
		return false
	}

	start := time.Now()
	e.submitMu.Lock()
	ok := e.orderRing.TryPush(order)
	e.submitMu.Unlock()

	if ok {
		e.metrics.observeLatency(uint64(time.Since(start).Nanoseconds()))
	}
	return ok
}

// CancelOrder goes straight to the target book, bypassing the order ring:
// cancellation latency must not queue behind submissions.
func (e *MatchingEngine) CancelOrder(orderID uint64, symbol string) bool {
	if !e.running.Load() {
		return false
	}
	book := e.registry.Get(symbol)
	if book == nil {
		return false
	}
	return book.CancelOrder(orderID)
}

// ModifyOrder delegates directly to the target book, like CancelOrder.
func (e *MatchingEngine) ModifyOrder(orderID uint64, symbol string, newQuantity, newPrice int64) bool {
	if !e.running.Load() {
		return false
	}
	book := e.registry.Get(symbol)
	if book == nil {
		return false
	}
	return book.ModifyOrder(orderID, newQuantity, newPrice)
}

// SubmitMarketData enqueues an external event for the observer pipeline,
// stamping it with the next sequence number. False on backpressure.
func (e *MatchingEngine) SubmitMarketData(data MarketData) bool {
	if !e.running.Load() {
		return false
	}
	data.SequenceNumber = e.sequence.Add(1)

	e.mdPushMu.Lock()
	ok := e.marketDataRing.TryPush(data)
	e.mdPushMu.Unlock()
	return ok
}

// SetMarketDataCallback registers the observer invoked for every drained
// market data event. The callback runs on a market data worker; a panic in
// it is isolated from the engine.
func (e *MatchingEngine) SetMarketDataCallback(fn func(MarketData)) {
	e.callbackMu.Lock()
	e.mdCallback = fn
	e.callbackMu.Unlock()
}

// GetOrderBookSnapshot returns the top-of-book view for symbol. The second
// return is false if the symbol has no book yet.
func (e *MatchingEngine) GetOrderBookSnapshot(symbol string) (OrderBookSnapshot, bool) {
	book := e.registry.Get(symbol)
	if book == nil {
		return OrderBookSnapshot{Symbol: symbol, Timestamp: nowNanos()}, false
	}
	return book.GetSnapshot(), true
}

func (e *MatchingEngine) Registry() *BookRegistry {
	return e.registry
}

func (e *MatchingEngine) Metrics() *EngineMetrics {
	return &e.metrics
}

func (e *MatchingEngine) ResetMetrics() {
	e.metrics.reset()
}

func (e *MatchingEngine) ActiveSymbols() []string {
	return e.registry.Symbols()
}

// TotalOrderCount sums resting orders across every book.
func (e *MatchingEngine) TotalOrderCount() int {
	total := 0
	for _, symbol := range e.registry.Symbols() {
		if book := e.registry.Get(symbol); book != nil {
			total += book.GetOrderCount()
		}
	}
	return total
}

// TotalTradeCount sums executed trades across every book.
func (e *MatchingEngine) TotalTradeCount() uint64 {
	var total uint64
	for _, symbol := range e.registry.Symbols() {
		if book := e.registry.Get(symbol); book != nil {
			total += book.GetTradeCount()
		}
	}
	return total
}

// onTrade runs on the goroutine that executed the trade (a matching worker,
// or the caller of ModifyOrder), after the book lock is released. Trades feed the market data pipeline best-effort:
// a full ring drops the event rather than stalling matching.
func (e *MatchingEngine) onTrade(trade MarketData) {
	e.metrics.tradesExecuted.Add(1)
	trade.SequenceNumber = e.sequence.Add(1)

	e.mdPushMu.Lock()
	e.marketDataRing.TryPush(trade)
	e.mdPushMu.Unlock()
}

func (e *MatchingEngine) matchingWorker(id int) {
	defer e.wg.Done()

	log.Debug().Int("worker", id).Msg("Matching worker started")
	batch := make([]*Order, 0, e.config.BatchSize)

	for !e.shutdown.Load() {
		batch = batch[:0]

		e.drainMu.Lock()
		for len(batch) < e.config.BatchSize {
			order, ok := e.orderRing.TryPop()
			if !ok {
				break
			}
			batch = append(batch, order)
		}
		e.drainMu.Unlock()

		if len(batch) == 0 {
			time.Sleep(e.config.IdlePark)
			continue
		}

		for _, order := range batch {
			book := e.registry.GetOrCreate(order.Symbol)
			if book.AddOrder(order) {
				e.metrics.ordersProcessed.Add(1)
			} else {
				e.metrics.ordersRejected.Add(1)
			}
		}
	}

	log.Debug().Int("worker", id).Msg("Matching worker stopped")
}

func (e *MatchingEngine) marketDataWorker(id int) {
	defer e.wg.Done()

	log.Debug().Int("worker", id).Msg("Market data worker started")
	batch := make([]MarketData, 0, e.config.BatchSize)

	for !e.shutdown.Load() {
		batch = batch[:0]

		e.mdDrainMu.Lock()
		for len(batch) < e.config.BatchSize {
			data, ok := e.marketDataRing.TryPop()
			if !ok {
				break
			}
			batch = append(batch, data)
		}
		e.mdDrainMu.Unlock()

		if len(batch) == 0 {
			time.Sleep(e.config.IdlePark)
			continue
		}

		e.callbackMu.RLock()
		callback := e.mdCallback
		e.callbackMu.RUnlock()

		for _, data := range batch {
			e.metrics.marketDataUpdates.Add(1)
			if callback != nil {
				e.invokeCallback(callback, data)
			}
		}
	}

	log.Debug().Int("worker", id).Msg("Market data worker stopped")
}

// invokeCallback shields the worker from observer faults.
func (e *MatchingEngine) invokeCallback(callback func(MarketData), data MarketData) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Market data callback panicked")
		}
	}()
	callback(data)
}

// metricsSampler derives per-second rates from the monotonic counters.
func (e *MatchingEngine) metricsSampler() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.MetricsSampleEvery)
	defer ticker.Stop()

	var lastOrders, lastTrades, lastMarketData uint64

	for !e.shutdown.Load() {
		select {
		case <-ticker.C:
			orders := e.metrics.ordersProcessed.Load()
			trades := e.metrics.tradesExecuted.Load()
			marketData := e.metrics.marketDataUpdates.Load()

			e.metrics.ordersPerSecond.Store(orders - lastOrders)
			e.metrics.tradesPerSecond.Store(trades - lastTrades)
			e.metrics.marketDataPerSecond.Store(marketData - lastMarketData)

			lastOrders, lastTrades, lastMarketData = orders, trades, marketData
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
