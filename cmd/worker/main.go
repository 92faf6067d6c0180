package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/arunavo4/sol-sell-escrow/internal/config"
	"github.com/arunavo4/sol-sell-escrow/internal/db"
	"github.com/arunavo4/sol-sell-escrow/internal/events"
	"github.com/arunavo4/sol-sell-escrow/internal/models"
	"github.com/arunavo4/sol-sell-escrow/internal/repositories"
	"github.com/arunavo4/sol-sell-escrow/internal/web3"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	offerRepo := repositories.NewOfferRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)
	chain := web3.NewClient(cfg.RPCEndpoint, cfg.Commitment, cfg.ConfirmTimeout, cfg.ConfirmInterval, log)

	log.Info("worker started", zap.Duration("reconcile_interval", cfg.ReconcileInterval))

	reconcileTicker := time.NewTicker(cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-reconcileTicker.C:
			runReconcile(ctx, offerRepo, chain, publisher, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runReconcile sweeps open offers and flags the ones whose on-chain escrow
// account is gone. A missing account means an exchange or cancel settled
// without the record moving (a timed-out submission that landed, or an action
// taken outside this service). The actual outcome cannot be read back, so the
// record is flagged, never auto-transitioned.
func runReconcile(ctx context.Context, offerRepo *repositories.OfferRepo, chain *web3.Client, publisher events.Publisher, log *zap.Logger) {
	offers, err := offerRepo.ListByStatus(ctx, models.OfferStatusRequested, 500)
	if err != nil {
		log.Error("failed to list open offers", zap.Error(err))
		return
	}

	for _, offer := range offers {
		escrowAddr, err := solana.PublicKeyFromBase58(offer.EscrowAddress)
		if err != nil {
			log.Error("offer has an unparseable escrow address",
				zap.String("offer_id", offer.ID.String()),
				zap.String("escrow_address", offer.EscrowAddress),
			)
			continue
		}

		_, err = chain.GetAccountData(ctx, escrowAddr)
		if err == nil {
			continue // escrow still open, record is in sync
		}
		if !errors.Is(err, web3.ErrAccountNotFound) {
			log.Warn("failed to check escrow account",
				zap.String("offer_id", offer.ID.String()),
				zap.Error(err),
			)
			continue
		}

		log.Warn("offer out of sync: escrow account no longer exists",
			zap.String("offer_id", offer.ID.String()),
			zap.String("escrow_address", offer.EscrowAddress),
		)
		_ = publisher.Publish(ctx, events.StreamOffers, events.Event{
			Type: events.EventOfferOutOfSync,
			Payload: map[string]any{
				"offer_id":       offer.ID.String(),
				"buyer_address":  offer.BuyerAddress,
				"seller_address": offer.SellerAddress,
				"escrow_address": offer.EscrowAddress,
				"status":         offer.Status,
			},
		})
	}
}
