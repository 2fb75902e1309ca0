package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crashpoll/internal/cache"
	"crashpoll/internal/database"
	"crashpoll/internal/game"
)

type FiberServer struct {
	*fiber.App

	db     database.Service
	cache  cache.Service
	ledger game.Ledger
	bets   *game.BetService
	poller *game.Poller
	hub    *game.Hub

	cancel context.CancelFunc
}

func New() *FiberServer {
	db := database.New()

	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for the shared round record")
	}

	ledger := database.NewLedger(db.Pool())
	store := game.NewRedisRoundStore(redisService.GetClient())
	hub := game.NewHub()
	bets := game.NewBetService(ledger)
	poller := game.NewPoller(store, bets, hub)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashpoll",
			AppName:       "crashpoll",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:     db,
		cache:  redisService,
		ledger: ledger,
		bets:   bets,
		poller: poller,
		hub:    hub,
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	server.cancel = cancel

	go hub.Run()
	go poller.Run(ctx)

	log.Println("[SERVER] Round poller started")

	return server
}

// Shutdown gracefully stops the polling loop and closes connections.
// Pending ledger operations were applied synchronously at placement, so
// nothing is left half-applied when the loop is torn down.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.cancel != nil {
		s.cancel()
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
