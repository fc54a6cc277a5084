package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/evw88/nifayatech/internal/admin"
	"github.com/evw88/nifayatech/internal/auth"
	"github.com/evw88/nifayatech/internal/config"
	"github.com/evw88/nifayatech/internal/driver"
	"github.com/evw88/nifayatech/internal/metadata"
	"github.com/evw88/nifayatech/internal/sensor"
	"github.com/evw88/nifayatech/internal/store"
)

func main() {
	ctx := context.Background()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log.Info().Int("port", cfg.Server.Port).Str("db", cfg.Database.Driver).Msg("config loaded")

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	registry, err := metadata.LoadFile(cfg.Admin.ModulesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Admin.ModulesFile).Msg("load module definitions")
	}
	log.Info().Int("modules", len(registry.All())).Msg("module definitions loaded")

	migrator := store.NewMigrator(db)
	if err := migrator.EnsureTables(ctx, registry.All()); err != nil {
		log.Fatal().Err(err).Msg("ensure tables")
	}
	if err := migrator.EnsureAuthTables(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure auth tables")
	}
	log.Info().Msg("schema ready")

	app := fiber.New(fiber.Config{
		ErrorHandler: admin.ErrorHandler(log),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes carry no middleware; everything admin-side requires a token.
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	authMW := auth.Middleware(cfg.JWTSecret)
	adminMW := auth.RequireRole("admin", "dispatcher")

	adminHandler := admin.NewHandler(db, registry, auth.BcryptHasher{}, log)
	admin.RegisterRoutes(app, adminHandler, cfg.Admin.Prefix, authMW, adminMW)

	// Sensors authenticate per-container via api_token, not JWT.
	sensorHandler := sensor.NewHandler(db, log)
	sensor.RegisterRoutes(app, sensorHandler)

	driverHandler := driver.NewHandler(db, log)
	driver.RegisterRoutes(app, driverHandler, authMW)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
