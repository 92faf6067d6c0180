package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arunavo4/sol-sell-escrow/internal/config"
	"github.com/arunavo4/sol-sell-escrow/internal/escrow"
	"github.com/arunavo4/sol-sell-escrow/internal/http/dto"
	"github.com/arunavo4/sol-sell-escrow/internal/middleware"
	"github.com/arunavo4/sol-sell-escrow/internal/models"
	"github.com/arunavo4/sol-sell-escrow/internal/repositories"
	"github.com/arunavo4/sol-sell-escrow/internal/web3"
)

type OfferHandler struct {
	offerService *escrow.OfferService
	hub          *WSHub
	rdb          *redis.Client
	cfg          *config.Config
	log          *zap.Logger
}

func NewOfferHandler(offerService *escrow.OfferService, hub *WSHub, rdb *redis.Client, cfg *config.Config, log *zap.Logger) *OfferHandler {
	return &OfferHandler{offerService: offerService, hub: hub, rdb: rdb, cfg: cfg, log: log}
}

// acquireGuard takes the in-flight lock for a trade action. While one action
// on an offer is running, further actions on the same offer get 409; actions
// on other offers are unaffected.
func (h *OfferHandler) acquireGuard(c *fiber.Ctx, key string) (release func(), ok bool) {
	ttl := h.cfg.SignTimeout + h.cfg.ConfirmTimeout
	acquired, err := h.rdb.SetNX(c.Context(), key, "1", ttl).Result()
	if err != nil {
		h.log.Error("in-flight guard unavailable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !acquired {
		return nil, false
	}
	return func() {
		h.rdb.Del(c.Context(), key)
	}, true
}

// tradeError maps the trade flow's error taxonomy onto HTTP statuses.
func (h *OfferHandler) tradeError(c *fiber.Ctx, err error) error {
	var verr *escrow.ValidationError
	var terr *escrow.TransitionError
	var aerr *escrow.AccountExistenceError
	var serr *web3.SubmissionError

	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: verr.Error()})
	case errors.Is(err, escrow.ErrOfferNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "offer not found"})
	case errors.As(err, &terr):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: terr.Error()})
	case errors.As(err, &aerr):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: aerr.Error()})
	case errors.Is(err, web3.ErrSignerRejected):
		// Benign: the human said no in the wallet.
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "wallet rejected the transaction"})
	case errors.Is(err, ErrNoWalletSession):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "connect your wallet session over the websocket first"})
	case errors.Is(err, web3.ErrConfirmationTimeout):
		// On-chain outcome unknown; the record was left untouched.
		return c.Status(fiber.StatusGatewayTimeout).JSON(dto.ErrorResponse{Error: "transaction not confirmed in time, outcome unknown"})
	case errors.As(err, &serr):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "transaction submission failed"})
	default:
		h.log.Error("trade action failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}

// CreateOffer opens a trade. The authenticated wallet is the seller and must
// countersign over its websocket session.
// POST /offers
func (h *OfferHandler) CreateOffer(c *fiber.Ctx) error {
	var req dto.CreateOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if req.BuyerAddress == "" || req.NFTAddress == "" || req.Amount == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "buyer_address, nft_address, and amount are required"})
	}

	seller := middleware.GetWalletAddress(c)

	release, ok := h.acquireGuard(c, "offer:busy:wallet:"+seller)
	if !ok {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "another trade action is in flight"})
	}
	defer release()

	signer, err := h.hub.Signer(seller, h.cfg.SignTimeout)
	if err != nil {
		return h.tradeError(c, err)
	}

	offer, err := h.offerService.RequestOffer(c.Context(), escrow.RequestOfferInput{
		BuyerAddress: req.BuyerAddress,
		NFTAddress:   req.NFTAddress,
		Amount:       req.Amount,
	}, signer)
	if err != nil {
		return h.tradeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: offer})
}

// GetOffer returns one offer.
// GET /offers/:id
func (h *OfferHandler) GetOffer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid offer id"})
	}

	offer, err := h.offerService.GetOffer(c.Context(), id)
	if err != nil {
		return h.tradeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}

// GetOfferByEscrow resolves an on-chain escrow account back to its offer.
// GET /offers/escrow/:address
func (h *OfferHandler) GetOfferByEscrow(c *fiber.Ctx) error {
	offer, err := h.offerService.ResolveEscrow(c.Context(), c.Params("address"))
	if err != nil {
		return h.tradeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}

// ListOffers returns the caller's trade history, newest activity first.
// GET /offers?role=buyer|seller&status=...&limit=&offset=
func (h *OfferHandler) ListOffers(c *fiber.Ctx) error {
	walletAddress := middleware.GetWalletAddress(c)
	filter := repositories.OfferFilter{
		Limit:  20,
		Offset: 0,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	switch c.Query("role") {
	case "seller":
		filter.SellerAddress = &walletAddress
	default:
		filter.BuyerAddress = &walletAddress
	}

	offers, err := h.offerService.ListOffers(c.Context(), filter)
	if err != nil {
		h.log.Error("list offers failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: offers})
}

// AcceptOffer settles the trade; the authenticated wallet must be the buyer.
// POST /offers/:id/accept
func (h *OfferHandler) AcceptOffer(c *fiber.Ctx) error {
	return h.tradeAction(c, h.offerService.AcceptOffer)
}

// CancelOffer aborts the trade; the authenticated wallet must be the seller.
// POST /offers/:id/cancel
func (h *OfferHandler) CancelOffer(c *fiber.Ctx) error {
	return h.tradeAction(c, h.offerService.CancelOffer)
}

func (h *OfferHandler) tradeAction(c *fiber.Ctx, action func(ctx context.Context, id uuid.UUID, signer web3.Signer) (*models.Offer, error)) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid offer id"})
	}

	release, ok := h.acquireGuard(c, "offer:busy:"+id.String())
	if !ok {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "another action on this offer is in flight"})
	}
	defer release()

	signer, err := h.hub.Signer(middleware.GetWalletAddress(c), h.cfg.SignTimeout)
	if err != nil {
		return h.tradeError(c, err)
	}

	offer, err := action(c.Context(), id, signer)
	if err != nil {
		return h.tradeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}
