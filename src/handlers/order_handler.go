package handlers

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"matchbook/src/engine"
	"matchbook/src/models"
)

// OrderHandler exposes the matching engine over HTTP. Order ids are
// assigned here from a strictly monotonic sequencer; the engine requires
// submitter-unique non-zero ids.
type OrderHandler struct {
	Engine    *engine.MatchingEngine
	StartTime time.Time

	nextOrderID atomic.Uint64
}

func NewOrderHandler(eng *engine.MatchingEngine) *OrderHandler {
	return &OrderHandler{
		Engine:    eng,
		StartTime: time.Now(),
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	side, orderType, err := validateSubmitOrderRequest(&req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("symbol", req.Symbol).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: err.Error(),
		})
	}

	orderID := h.nextOrderID.Add(1)
	order := engine.NewOrder(orderID, req.ClientID, req.Symbol, side, orderType, req.Price, req.Quantity)

	if !h.Engine.SubmitOrder(order) {
		// edge case: ring full or engine stopped; nothing was admitted
		log.Warn().
			Uint64("order_id", orderID).
			Str("symbol", req.Symbol).
			Msg("Order rejected: engine backpressure")
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: "Engine busy, retry later",
		})
	}

	log.Info().
		Uint64("order_id", orderID).
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("type", req.Type).
		Int64("price", req.Price).
		Int64("quantity", req.Quantity).
		Msg("Order accepted for matching")

	return c.Status(fiber.StatusAccepted).JSON(models.SubmitOrderResponse{
		OrderID: orderID,
		Status:  "ACCEPTED",
		Message: "Order queued for matching",
	})
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	symbol := c.Query("symbol")
	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "symbol query parameter is required",
		})
	}

	if !h.Engine.CancelOrder(orderID, symbol) {
		log.Warn().
			Uint64("order_id", orderID).
			Str("symbol", symbol).
			Msg("Cancel order: not found")
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	log.Info().
		Uint64("order_id", orderID).
		Str("symbol", symbol).
		Msg("Order cancelled")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID: orderID,
		Status:  "CANCELLED",
	})
}

func (h *OrderHandler) ModifyOrder(c *fiber.Ctx) error {
	orderID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	var req models.ModifyOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}
	if req.Symbol == "" || req.Quantity <= 0 || req.Price <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid modify: symbol, positive quantity and price required",
		})
	}

	if !h.Engine.ModifyOrder(orderID, req.Symbol, req.Quantity, req.Price) {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	log.Info().
		Uint64("order_id", orderID).
		Str("symbol", req.Symbol).
		Int64("quantity", req.Quantity).
		Int64("price", req.Price).
		Msg("Order modified")

	return c.Status(fiber.StatusOK).JSON(models.SubmitOrderResponse{
		OrderID: orderID,
		Status:  "MODIFIED",
	})
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	orderID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	symbol := c.Query("symbol")
	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "symbol query parameter is required",
		})
	}

	book := h.Engine.Registry().Get(symbol)
	if book == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	order, exists := book.GetOrder(orderID)
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:        order.ID,
		ClientID:       order.ClientID,
		Symbol:         order.Symbol,
		Side:           order.Side.String(),
		Type:           order.Type.String(),
		Price:          order.Price,
		Quantity:       order.Quantity,
		FilledQuantity: order.GetFilledQuantity(),
		Status:         order.GetStatus().String(),
		Timestamp:      order.Timestamp,
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	snapshot, _ := h.Engine.GetOrderBookSnapshot(symbol)

	bids := make([]models.PriceLevelInfo, 0, len(snapshot.Bids))
	for _, level := range snapshot.Bids {
		bids = append(bids, models.PriceLevelInfo{Price: level.Price, Quantity: level.Quantity})
	}
	asks := make([]models.PriceLevelInfo, 0, len(snapshot.Asks))
	for _, level := range snapshot.Asks {
		asks = append(asks, models.PriceLevelInfo{Price: level.Price, Quantity: level.Quantity})
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		Symbol:    snapshot.Symbol,
		Timestamp: snapshot.Timestamp,
		Bids:      bids,
		Asks:      asks,
	})
}

func (h *OrderHandler) GetRecentTrades(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	count := 100
	if parsed, err := strconv.Atoi(c.Query("count", "100")); err == nil && parsed > 0 {
		count = parsed
	}

	book := h.Engine.Registry().Get(symbol)
	if book == nil {
		return c.Status(fiber.StatusOK).JSON(models.TradesResponse{
			Symbol: symbol,
			Trades: []models.TradeInfo{},
		})
	}

	recent := book.GetRecentTrades(count)
	trades := make([]models.TradeInfo, 0, len(recent))
	for _, trade := range recent {
		trades = append(trades, models.TradeInfo{
			TradeID:   trade.TradeID,
			Price:     trade.TradePrice,
			Quantity:  trade.TradeQuantity,
			Timestamp: trade.Timestamp,
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.TradesResponse{
		Symbol: symbol,
		Trades: trades,
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
		Running:       h.Engine.IsRunning(),
		ActiveSymbols: len(h.Engine.ActiveSymbols()),
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	metrics := h.Engine.Metrics()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersProcessed:     metrics.OrdersProcessed(),
		OrdersRejected:      metrics.OrdersRejected(),
		TradesExecuted:      metrics.TradesExecuted(),
		MarketDataUpdates:   metrics.MarketDataUpdates(),
		OrdersInBook:        h.Engine.TotalOrderCount(),
		AvgLatencyNs:        metrics.AverageLatencyNs(),
		MinLatencyNs:        metrics.MinLatencyNs(),
		MaxLatencyNs:        metrics.MaxLatencyNs(),
		OrdersPerSecond:     metrics.OrdersPerSecond(),
		TradesPerSecond:     metrics.TradesPerSecond(),
		MarketDataPerSecond: metrics.MarketDataPerSecond(),
	})
}

func validateSubmitOrderRequest(req *models.SubmitOrderRequest) (engine.OrderSide, engine.OrderType, error) {
	if req.Symbol == "" {
		return 0, 0, &ValidationError{Message: "Invalid order: symbol is required"}
	}
	if len(req.Symbol) > 16 {
		return 0, 0, &ValidationError{Message: "Invalid order: symbol must be at most 16 bytes"}
	}

	var side engine.OrderSide
	switch req.Side {
	case "BUY":
		side = engine.SideBuy
	case "SELL":
		side = engine.SideSell
	default:
		return 0, 0, &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	}

	var orderType engine.OrderType
	switch req.Type {
	case "LIMIT":
		orderType = engine.TypeLimit
	case "MARKET":
		orderType = engine.TypeMarket
	default:
		return 0, 0, &ValidationError{Message: "Invalid order: type must be LIMIT or MARKET"}
	}

	if req.Quantity <= 0 {
		return 0, 0, &ValidationError{Message: "Invalid order: quantity must be positive"}
	}

	// edge case: price required for limit orders only
	if orderType == engine.TypeLimit && req.Price <= 0 {
		return 0, 0, &ValidationError{Message: "Invalid order: price must be positive for LIMIT orders"}
	}

	return side, orderType, nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
