package models

type SubmitOrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    int64  `json:"price"` // cents, required for LIMIT, ignored for MARKET
	Quantity int64  `json:"quantity"`
	ClientID uint64 `json:"client_id,omitempty"`
}

type SubmitOrderResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ModifyOrderRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"` // cents
}

type CancelOrderResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PriceLevelInfo struct {
	Price    int64 `json:"price"`    // cents
	Quantity int64 `json:"quantity"` // aggregated remaining quantity
}

type OrderBookResponse struct {
	Symbol    string           `json:"symbol"`
	Timestamp int64            `json:"timestamp"` // nanoseconds
	Bids      []PriceLevelInfo `json:"bids"`      // highest first
	Asks      []PriceLevelInfo `json:"asks"`      // lowest first
}

type TradeInfo struct {
	TradeID   uint64 `json:"trade_id"`
	Price     int64  `json:"price"` // cents
	Quantity  int64  `json:"quantity"`
	Timestamp int64  `json:"timestamp"` // nanoseconds
}

type TradesResponse struct {
	Symbol string      `json:"symbol"`
	Trades []TradeInfo `json:"trades"` // newest first
}

type OrderStatusResponse struct {
	OrderID        uint64 `json:"order_id"`
	ClientID       uint64 `json:"client_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Price          int64  `json:"price"` // cents
	Quantity       int64  `json:"quantity"`
	FilledQuantity int64  `json:"filled_quantity"`
	Status         string `json:"status"`
	Timestamp      int64  `json:"timestamp"` // nanoseconds
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Running       bool   `json:"engine_running"`
	ActiveSymbols int    `json:"active_symbols"`
}

type MetricsResponse struct {
	OrdersProcessed     uint64  `json:"orders_processed"`
	OrdersRejected      uint64  `json:"orders_rejected"`
	TradesExecuted      uint64  `json:"trades_executed"`
	MarketDataUpdates   uint64  `json:"market_data_updates"`
	OrdersInBook        int     `json:"orders_in_book"`
	AvgLatencyNs        float64 `json:"avg_latency_ns"`
	MinLatencyNs        uint64  `json:"min_latency_ns"`
	MaxLatencyNs        uint64  `json:"max_latency_ns"`
	OrdersPerSecond     uint64  `json:"orders_per_second"`
	TradesPerSecond     uint64  `json:"trades_per_second"`
	MarketDataPerSecond uint64  `json:"market_data_per_second"`
}
