package engine

import "sync"

// BookRegistry maps symbol -> OrderBook with lazy creation. Lookups take
// the shared lock; only a first touch of a new symbol takes the exclusive
// lock.
type BookRegistry struct {
	books   map[string]*OrderBook
	onTrade func(MarketData)
	mu      sync.RWMutex
}

// NewBookRegistry creates an empty registry. onTrade, if non-nil, is
// installed on every book the registry creates.
func NewBookRegistry(onTrade func(MarketData)) *BookRegistry {
	return &BookRegistry{
		books:   make(map[string]*OrderBook),
		onTrade: onTrade,
	}
}

// GetOrCreate returns the book for symbol, creating it on first reference.
// Concurrent first-touch of the same symbol yields the same instance.
func (r *BookRegistry) GetOrCreate(symbol string) *OrderBook {
	r.mu.RLock()
	if ob, exists := r.books[symbol]; exists {
		r.mu.RUnlock()
		return ob
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// edge case: double-check after acquiring the write lock
	if ob, exists := r.books[symbol]; exists {
		return ob
	}

	ob := NewOrderBook(symbol)
	if r.onTrade != nil {
		ob.SetTradeHandler(r.onTrade)
	}
	r.books[symbol] = ob
	return ob
}

// Get returns the book for symbol, or nil if the symbol has never been
// referenced.
func (r *BookRegistry) Get(symbol string) *OrderBook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.books[symbol]
}

// Symbols returns every registered symbol, in no particular order.
func (r *BookRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.books))
	for symbol := range r.books {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Count returns the number of registered books.
func (r *BookRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}

// Remove drops a book. Administrative only; not used during matching.
func (r *BookRegistry) Remove(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, symbol)
}
