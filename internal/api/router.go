package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	v1 "github.com/mnuddindev/koishi/internal/api/v1"
	"github.com/mnuddindev/koishi/internal/config"
	"github.com/mnuddindev/koishi/pkg/logger"
	storage "github.com/mnuddindev/koishi/pkg/redis"
)

// NewRoutes installs the middleware chain and mounts the versioned API. The
// v1 package globals must be assigned before this is called.
func NewRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, log *logger.Logger, rclient *storage.RedisClient) {
	app.Use(
		logger.SetupLogger(log),
		recover.New(),
		cors.New(
			cors.Config{
				AllowOrigins:     cfg.WebURL,
				AllowCredentials: true,
				AllowHeaders:     "Origin, Content-Type, Accept, x-auth-token",
			},
		),
		compress.New(
			compress.Config{
				Level: compress.LevelBestCompression,
			},
		),
		limiter.New(
			limiter.Config{
				Expiration: 1 * time.Minute,
				Max:        60,
				KeyGenerator: func(c *fiber.Ctx) string {
					return c.IP()
				},
			},
		),
	)
	app.Use(log.Middleware())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	v1.Setup(app)

	go func() {
		<-ctx.Done()
		rclient.Close(log)
		log.Close()
	}()
}
