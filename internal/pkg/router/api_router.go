package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/formrelay/squarelink/app/controllers"
	"github.com/formrelay/squarelink/internal/pkg/env"
	"github.com/formrelay/squarelink/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Rate limit state lives in Redis so limits hold across restarts.
	port, _ := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	storage := redis.New(redis.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    storage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.APIKeyMiddleware())
	v1.Post("/payments/authorize", controllers.HandleAuthorizePayment)
	v1.Post("/payments/action", controllers.HandlePaymentAction)
	v1.Get("/settings/connection", controllers.HandleConnectionStatus)
	v1.Post("/settings/location", controllers.HandleSelectLocation)
	v1.Post("/oauth/credentials", controllers.HandleStoreCredentials)
	v1.Post("/oauth/deauthorize", controllers.HandleDeauthorize)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
