package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/arunavo4/sol-sell-escrow/internal/config"
	"github.com/arunavo4/sol-sell-escrow/internal/db"
	"github.com/arunavo4/sol-sell-escrow/internal/escrow"
	"github.com/arunavo4/sol-sell-escrow/internal/events"
	apphttp "github.com/arunavo4/sol-sell-escrow/internal/http"
	"github.com/arunavo4/sol-sell-escrow/internal/http/handlers"
	"github.com/arunavo4/sol-sell-escrow/internal/repositories"
	"github.com/arunavo4/sol-sell-escrow/internal/web3"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	offerRepo := repositories.NewOfferRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Chain client + trade service
	chain := web3.NewClient(cfg.RPCEndpoint, cfg.Commitment, cfg.ConfirmTimeout, cfg.ConfirmInterval, log)
	offerService, err := escrow.NewOfferService(offerRepo, chain, publisher, cfg, log)
	if err != nil {
		log.Fatal("failed to build offer service", zap.Error(err))
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(walletRepo, rdb, cfg, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	offerHandler := handlers.NewOfferHandler(offerService, wsHub, rdb, cfg, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, offerHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
