package engine_test

import (
	"sync"
	"testing"
	"time"

	"matchbook/src/engine"
)

// TestSimulatedSourceLifecycle tests the connect/start/stop contract
func TestSimulatedSourceLifecycle(t *testing.T) {
	source := engine.NewSimulatedSource([]string{"AAPL"})

	if source.IsConnected() {
		t.Fatal("New source should not be connected")
	}
	if err := source.Start(); err == nil {
		t.Fatal("Start before Connect should fail")
	}

	if err := source.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !source.IsConnected() {
		t.Fatal("Source should be connected")
	}

	if err := source.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := source.Start(); err == nil {
		t.Error("Second start should fail")
	}

	source.Disconnect()
	if source.IsConnected() {
		t.Error("Source should be disconnected")
	}
}

// TestSimulatedSourceNoSymbols tests that a source without symbols
// refuses to connect
func TestSimulatedSourceNoSymbols(t *testing.T) {
	source := engine.NewSimulatedSource(nil)
	if err := source.Connect(); err == nil {
		t.Error("Connect with no symbols should fail")
	}
}

// TestSimulatedSourceStreams tests that events reach the callback with
// sane fields
func TestSimulatedSourceStreams(t *testing.T) {
	source := engine.NewSimulatedSource([]string{"AAPL", "GOOG"})
	source.SetTickRate(1000)

	var mu sync.Mutex
	var events []engine.MarketData
	source.SetCallback(func(data engine.MarketData) {
		mu.Lock()
		events = append(events, data)
		mu.Unlock()
	})

	if err := source.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := source.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		count := len(events)
		mu.Unlock()
		if count >= 10 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	source.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 10 {
		t.Fatalf("Expected at least 10 events, got: %d", len(events))
	}

	for _, event := range events {
		if event.Symbol != "AAPL" && event.Symbol != "GOOG" {
			t.Errorf("Unexpected symbol: %s", event.Symbol)
		}
		if event.Timestamp == 0 {
			t.Error("Events should carry a timestamp")
		}
		switch event.Type {
		case engine.DataTrade:
			if event.TradePrice <= 0 || event.TradeQuantity <= 0 {
				t.Errorf("Bad trade event: %+v", event)
			}
		case engine.DataQuote:
			if event.BidPrice >= event.AskPrice {
				t.Errorf("Quote should have bid < ask: %+v", event)
			}
		case engine.DataTick:
			if event.Price <= 0 {
				t.Errorf("Bad tick event: %+v", event)
			}
		default:
			t.Errorf("Unexpected event type: %s", event.Type)
		}
	}

	if source.Stats().EventsGenerated() == 0 {
		t.Error("Stats should count generated events")
	}
}
