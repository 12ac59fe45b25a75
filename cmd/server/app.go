package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	routes "github.com/mnuddindev/koishi/internal/api"
	v1 "github.com/mnuddindev/koishi/internal/api/v1"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/config"
	"github.com/mnuddindev/koishi/internal/db"
	"github.com/mnuddindev/koishi/internal/events"
	"github.com/mnuddindev/koishi/internal/models"
	"github.com/mnuddindev/koishi/pkg/logger"
	"github.com/mnuddindev/koishi/pkg/notify"
	storage "github.com/mnuddindev/koishi/pkg/redis"
	"github.com/mnuddindev/koishi/pkg/utils"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	log, err := logger.NewLogger(ctx, logger.WithAppName("koishi"))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Close()

	auth.Init(cfg.JWTSecret)

	redisClient, err := storage.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Error(ctx).WithMeta(utils.Map{"error": err.Error()}).Logs("Failed to initialize Redis")
		panic(err)
	}
	defer redisClient.Close(log)

	gormDB, err := db.NewDB(ctx, cfg.DSN(), models.RegisterModels(), db.WithLogger(log))
	if err != nil {
		log.Error(ctx).WithMeta(utils.Map{"error": err.Error()}).Logs("Failed to initialize PostgreSQL database")
		panic("DB init failed")
	}
	defer db.CloseDB(log)

	notifier := notify.NewService(cfg.WebURL)
	bus := events.NewBus(gormDB, notifier, log)
	defer bus.Close()

	v1.DB = gormDB
	v1.Redis = redisClient
	v1.Logger = log
	v1.Notifier = notifier
	v1.Bus = bus
	v1.Cfg = cfg

	app := fiber.New()
	routes.NewRoutes(ctx, app, cfg, log, redisClient)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info(ctx).Logs("Shutting down")
		cancel()
		app.Shutdown()
	}()

	if err := app.Listen(cfg.ServerAddr); err != nil {
		log.Error(ctx).WithMeta(utils.Map{"error": err.Error()}).Logs("Server stopped")
	}
}
