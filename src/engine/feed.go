package engine

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// FeedStats tracks a market data source.
type FeedStats struct {
	eventsGenerated atomic.Uint64
	eventsDropped   atomic.Uint64
}

func (s *FeedStats) EventsGenerated() uint64 { return s.eventsGenerated.Load() }
func (s *FeedStats) EventsDropped() uint64   { return s.eventsDropped.Load() }

// MarketDataSource is the capability a feed offers the engine: connect,
// stream events into a callback, stop. One interface, no hierarchy.
type MarketDataSource interface {
	Connect() error
	Disconnect()
	IsConnected() bool

	Start() error
	Stop()

	SetCallback(fn func(MarketData))
	SetErrorCallback(fn func(error))

	Stats() *FeedStats
}

// SimulatedSource generates a random-walk feed over a fixed symbol set:
// trades, quotes and ticks at a configurable rate and volatility. Used by
// simulation mode and by tests that need a live feed without a venue.
type SimulatedSource struct {
	symbols    []string
	tickRate   int     // events per second
	volatility float64 // stddev of a single step, in fraction of price

	prices map[string]int64 // cents, current simulated price per symbol
	rng    *rand.Rand

	callback func(MarketData)
	errback  func(error)
	cbMu     sync.RWMutex

	connected atomic.Bool
	streaming atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup

	stats FeedStats
}

// NewSimulatedSource seeds each symbol at 100.00 and defaults to 100
// events/second with 0.1% step volatility.
func NewSimulatedSource(symbols []string) *SimulatedSource {
	prices := make(map[string]int64, len(symbols))
	for _, symbol := range symbols {
		prices[symbol] = 10000
	}
	return &SimulatedSource{
		symbols:    symbols,
		tickRate:   100,
		volatility: 0.001,
		prices:     prices,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimulatedSource) SetTickRate(eventsPerSecond int) {
	if eventsPerSecond > 0 {
		s.tickRate = eventsPerSecond
	}
}

func (s *SimulatedSource) SetVolatility(volatility float64) {
	if volatility > 0 {
		s.volatility = volatility
	}
}

func (s *SimulatedSource) Connect() error {
	if len(s.symbols) == 0 {
		return errors.New("simulated source: no symbols configured")
	}
	s.connected.Store(true)
	return nil
}

func (s *SimulatedSource) Disconnect() {
	s.Stop()
	s.connected.Store(false)
}

func (s *SimulatedSource) IsConnected() bool {
	return s.connected.Load()
}

// Start launches the streaming goroutine. The source must be connected.
func (s *SimulatedSource) Start() error {
	if !s.connected.Load() {
		return errors.New("simulated source: not connected")
	}
	if !s.streaming.CompareAndSwap(false, true) {
		return errors.New("simulated source: already streaming")
	}

	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.streamLoop()

	log.Info().
		Strs("symbols", s.symbols).
		Int("tick_rate", s.tickRate).
		Msg("Simulated market data source started")
	return nil
}

func (s *SimulatedSource) Stop() {
	if !s.streaming.CompareAndSwap(true, false) {
		return
	}
	close(s.done)
	s.wg.Wait()
}

func (s *SimulatedSource) SetCallback(fn func(MarketData)) {
	s.cbMu.Lock()
	s.callback = fn
	s.cbMu.Unlock()
}

func (s *SimulatedSource) SetErrorCallback(fn func(error)) {
	s.cbMu.Lock()
	s.errback = fn
	s.cbMu.Unlock()
}

func (s *SimulatedSource) Stats() *FeedStats {
	return &s.stats
}

func (s *SimulatedSource) streamLoop() {
	defer s.wg.Done()

	interval := time.Second / time.Duration(s.tickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			symbol := s.symbols[s.rng.Intn(len(s.symbols))]
			event := s.generateEvent(symbol)

			s.cbMu.RLock()
			callback := s.callback
			s.cbMu.RUnlock()

			if callback == nil {
				s.stats.eventsDropped.Add(1)
				continue
			}
			callback(event)
			s.stats.eventsGenerated.Add(1)
		}
	}
}

// generateEvent steps the symbol's random walk and emits a trade, quote or
// tick around the new price.
func (s *SimulatedSource) generateEvent(symbol string) MarketData {
	price := s.stepPrice(symbol)

	event := MarketData{
		Symbol:    symbol,
		Timestamp: nowNanos(),
	}

	switch s.rng.Intn(3) {
	case 0:
		event.Type = DataTrade
		event.TradePrice = price
		event.TradeQuantity = int64(s.rng.Intn(1000) + 1)
	case 1:
		spread := price / 1000
		if spread < 1 {
			spread = 1
		}
		event.Type = DataQuote
		event.BidPrice = price - spread
		event.BidQuantity = int64(s.rng.Intn(5000) + 100)
		event.AskPrice = price + spread
		event.AskQuantity = int64(s.rng.Intn(5000) + 100)
	default:
		event.Type = DataTick
		event.Price = price
	}
	return event
}

func (s *SimulatedSource) stepPrice(symbol string) int64 {
	price := s.prices[symbol]
	step := int64(float64(price) * s.volatility * s.rng.NormFloat64())
	price += step
	// edge case: the walk must never cross zero
	if price < 1 {
		price = 1
	}
	s.prices[symbol] = price
	return price
}
