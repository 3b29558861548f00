package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"matchbook/src/engine"
	"matchbook/src/handlers"
	"matchbook/src/logger"
	"matchbook/src/routes"
)

func engineConfigFromEnv() engine.Config {
	config := engine.DefaultConfig()

	if env := os.Getenv("MATCHING_WORKERS"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			config.MatchingWorkers = parsed
		}
	}
	if env := os.Getenv("MARKET_DATA_WORKERS"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			config.MarketDataWorkers = parsed
		}
	}
	if env := os.Getenv("ORDER_RING_SIZE"); env != "" {
		if parsed, err := strconv.ParseUint(env, 10, 64); err == nil && parsed > 0 && parsed&(parsed-1) == 0 {
			config.OrderRingSize = parsed
		}
	}

	return config
}

func main() {
	logger.InitLogger()
	log := logger.GetLogger()

	log.Info().Msg("Initializing matching engine")

	eng := engine.NewMatchingEngine(engineConfigFromEnv())
	if !eng.Start() {
		log.Fatal().Msg("Engine failed to start")
	}

	// Simulation mode drives the market data pipeline with a random-walk
	// feed, mirroring a live venue without one.
	var feed *engine.SimulatedSource
	if os.Getenv("SIMULATION_MODE") == "1" {
		symbols := []string{"AAPL", "GOOG", "MSFT", "TSLA"}
		if env := os.Getenv("SIM_SYMBOLS"); env != "" {
			symbols = strings.Split(env, ",")
		}

		feed = engine.NewSimulatedSource(symbols)
		if env := os.Getenv("SIM_TICK_RATE"); env != "" {
			if parsed, err := strconv.Atoi(env); err == nil {
				feed.SetTickRate(parsed)
			}
		}

		feed.SetCallback(func(data engine.MarketData) {
			eng.SubmitMarketData(data)
		})

		if err := feed.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Simulated feed failed to connect")
		}
		if err := feed.Start(); err != nil {
			log.Fatal().Err(err).Msg("Simulated feed failed to start")
		}
	}

	orderHandler := handlers.NewOrderHandler(eng)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, orderHandler)

	port := ":8080"
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = ":" + envPort
	}

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			// edge case: ignore shutdown errors, only report real errors
			if err.Error() != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	default:
		log.Info().
			Str("port", port).
			Msg("Matching engine gateway started")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	shutdownTimeout := 10 * time.Second
	if envTimeout := os.Getenv("SHUTDOWN_TIMEOUT"); envTimeout != "" {
		if parsed, err := time.ParseDuration(envTimeout); err == nil && parsed > 0 {
			shutdownTimeout = parsed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", shutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	}

	if feed != nil {
		feed.Disconnect()
	}
	eng.Stop()

	log.Info().Msg("Shutdown complete")
	logger.CloseLogger()
}
