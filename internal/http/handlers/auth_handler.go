package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arunavo4/sol-sell-escrow/internal/auth"
	"github.com/arunavo4/sol-sell-escrow/internal/config"
	"github.com/arunavo4/sol-sell-escrow/internal/http/dto"
	"github.com/arunavo4/sol-sell-escrow/internal/middleware"
	"github.com/arunavo4/sol-sell-escrow/internal/repositories"
)

const nonceKeyPrefix = "login:nonce:"

type AuthHandler struct {
	walletRepo *repositories.WalletRepo
	rdb        *redis.Client
	cfg        *config.Config
	log        *zap.Logger
}

func NewAuthHandler(walletRepo *repositories.WalletRepo, rdb *redis.Client, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{walletRepo: walletRepo, rdb: rdb, cfg: cfg, log: log}
}

// Challenge issues a one-time login nonce.
// GET /auth/challenge
func (h *AuthHandler) Challenge(c *fiber.Ctx) error {
	nonce := uuid.NewString()
	if err := h.rdb.Set(c.Context(), nonceKeyPrefix+nonce, "1", h.cfg.LoginProofMaxAge).Err(); err != nil {
		h.log.Error("failed to store login nonce", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.ChallengeResponse{
		Nonce:     nonce,
		ExpiresIn: int(h.cfg.LoginProofMaxAge.Seconds()),
	})
}

// Login verifies a wallet's signature over the login message and issues a JWT.
// POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Address == "" || req.Proof.Signature == "" || req.Proof.Nonce == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address, proof.nonce, and proof.signature are required"})
	}

	// Consume the nonce before verifying so a replay loses the race.
	err := h.rdb.GetDel(c.Context(), nonceKeyPrefix+req.Proof.Nonce).Err()
	if errors.Is(err, redis.Nil) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown or already used nonce"})
	}
	if err != nil {
		h.log.Error("failed to consume login nonce", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	if err := auth.VerifyLoginProof(req.Address, req.Proof, h.cfg.LoginProofMaxAge, h.cfg.LoginAllowedDomains); err != nil {
		h.log.Debug("login proof rejected", zap.String("address", req.Address), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	if _, err := h.walletRepo.RecordLogin(c.Context(), req.Address); err != nil {
		h.log.Error("failed to record wallet login", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, req.Address, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to sign jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.AuthResponse{Token: token, WalletAddress: req.Address})
}

// Me returns the authenticated wallet's record.
// GET /auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	address := middleware.GetWalletAddress(c)
	wallet, err := h.walletRepo.Get(c.Context(), address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "wallet not found"})
		}
		h.log.Error("failed to load wallet", zap.String("address", address), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: wallet})
}
