package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pyanoxyz/agent-generator/internal/config"
	"github.com/pyanoxyz/agent-generator/pkg/auth"
)

func newAuthApp(tokens *auth.ServiceTokenAuth) *fiber.App {
	app := fiber.New()
	app.Get("/logs", ServiceAuthMiddleware(tokens), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("caller_id").(string))
	})
	app.Get("/admin", ServiceAuthMiddleware(tokens), RequireRole(auth.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestServiceAuthMiddleware(t *testing.T) {
	tokens, _ := auth.NewServiceTokenAuth("secret")
	serviceToken, _ := tokens.Issue("collector", auth.RoleService, time.Hour)
	adminToken, _ := tokens.Issue("ops", auth.RoleAdmin, time.Hour)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing token", "/logs", "", fiber.StatusUnauthorized},
		{"bad token", "/logs", "Bearer nope", fiber.StatusUnauthorized},
		{"service token", "/logs", "Bearer " + serviceToken, fiber.StatusOK},
		{"service token on admin route", "/admin", "Bearer " + serviceToken, fiber.StatusForbidden},
		{"admin token", "/admin", "Bearer " + adminToken, fiber.StatusNoContent},
	}

	app := newAuthApp(tokens)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestServiceAuthMiddleware_Unconfigured(t *testing.T) {
	app := newAuthApp(nil)
	resp, err := app.Test(httptest.NewRequest("GET", "/logs", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestDeployRateLimiter(t *testing.T) {
	rl := NewRateLimitConfig(&config.Config{Environment: "production", RateLimitGlobal: 100, RateLimitDeploy: 2})

	app := fiber.New()
	app.Post("/deploy", DeployRateLimiter(rl), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i, want := range []int{200, 200, 429} {
		resp, err := app.Test(httptest.NewRequest("POST", "/deploy", nil))
		if err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
		if resp.StatusCode != want {
			t.Errorf("Request %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}
}

func TestNewRateLimitConfig(t *testing.T) {
	rl := NewRateLimitConfig(&config.Config{Environment: "development", RateLimitGlobal: 100})
	if rl.GlobalAPIMax != 500 {
		t.Errorf("Expected relaxed global limit 500, got %d", rl.GlobalAPIMax)
	}
	if rl.DeployMax != 10 {
		t.Errorf("Expected default deploy limit 10, got %d", rl.DeployMax)
	}
}
