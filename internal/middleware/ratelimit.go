package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/pyanoxyz/agent-generator/internal/config"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Deploy uploads files and calls every external collaborator
	DeployMax        int
	DeployExpiration time.Duration
}

// NewRateLimitConfig builds limits from the loaded configuration
func NewRateLimitConfig(cfg *config.Config) *RateLimitConfig {
	rl := &RateLimitConfig{
		GlobalAPIMax:        cfg.RateLimitGlobal,
		GlobalAPIExpiration: 1 * time.Minute,
		DeployMax:           cfg.RateLimitDeploy,
		DeployExpiration:    1 * time.Minute,
	}
	if rl.GlobalAPIMax <= 0 {
		rl.GlobalAPIMax = 200
	}
	if rl.DeployMax <= 0 {
		rl.DeployMax = 10
	}

	// Development mode: more lenient limits
	if cfg.Environment == "development" {
		rl.GlobalAPIMax *= 5
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return rl
}

// GlobalAPIRateLimiter limits all API requests per IP
func GlobalAPIRateLimiter(rl *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        rl.GlobalAPIMax,
		Expiration: rl.GlobalAPIExpiration,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "RateLimited",
				"detail":      "Too many requests. Please slow down.",
				"retry_after": int(rl.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// DeployRateLimiter limits deployment requests per IP
func DeployRateLimiter(rl *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        rl.DeployMax,
		Expiration: rl.DeployExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "deploy:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Deploy limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "RateLimited",
				"detail":      "Too many deployment requests. Please wait before deploying again.",
				"retry_after": int(rl.DeployExpiration.Seconds()),
			})
		},
	})
}
