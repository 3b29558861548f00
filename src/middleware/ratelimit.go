package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimiter is a fixed-window per-client limiter keyed by source IP.
type RateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	counters       map[string]int
	mu             sync.Mutex
}

func NewRateLimiter(maxRequests int, windowDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		counters:       make(map[string]int),
	}
}

func (rl *RateLimiter) clientKey(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

func (rl *RateLimiter) windowKey(client string, now time.Time) string {
	window := now.Unix() / int64(rl.windowDuration.Seconds())
	return fmt.Sprintf("%s_%d", client, window)
}

// Allow reports whether client may make another request in the current
// window and counts it if so.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	key := rl.windowKey(client, now)

	count, exists := rl.counters[key]
	if !exists {
		// edge case: drop the client's stale windows on rollover
		rl.dropStaleWindows(client, key)
		rl.counters[key] = 1
		return true
	}

	if count >= rl.maxRequests {
		return false
	}

	rl.counters[key] = count + 1
	return true
}

func (rl *RateLimiter) dropStaleWindows(client, currentKey string) {
	prefix := client + "_"
	for key := range rl.counters {
		if key != currentKey && strings.HasPrefix(key, prefix) {
			delete(rl.counters, key)
		}
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		client := rl.clientKey(c)

		if !rl.Allow(client) {
			log.Warn().
				Str("client_ip", client).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			c.Set("Retry-After", strconv.Itoa(int(rl.windowDuration.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}

func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(100, time.Second)
}
