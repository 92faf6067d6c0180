package dto

import "github.com/arunavo4/sol-sell-escrow/internal/auth"

type LoginRequest struct {
	Address string          `json:"address"`
	Proof   auth.LoginProof `json:"proof"`
}

type CreateOfferRequest struct {
	BuyerAddress string `json:"buyer_address"`
	NFTAddress   string `json:"nft_address"`
	Amount       string `json:"amount"` // SOL, at most one fractional digit
}
