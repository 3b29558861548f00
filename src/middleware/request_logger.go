package middleware

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLogger stamps every request with a correlation id and logs method,
// path, status and latency. The id is echoed in the X-Request-ID response
// header so clients can quote it back.
func RequestLogger() fiber.Handler {
	disabled := os.Getenv("REQUEST_LOGGING_DISABLED") == "1"
	logLevel := zerolog.GlobalLevel()
	shouldLog := !disabled && logLevel <= zerolog.InfoLevel

	return func(c *fiber.Ctx) error {
		requestID := uuid.New().String()
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)

		var start time.Time
		if shouldLog {
			start = time.Now()
		}

		err := c.Next()

		if shouldLog {
			latency := time.Since(start)
			log.Info().
				Str("request_id", requestID).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Int("status", c.Response().StatusCode()).
				Int64("latency_us", latency.Microseconds()).
				Msg("HTTP request")
		}

		return err
	}
}
