package models

import (
	"time"

	"github.com/google/uuid"
)

// Offer statuses. An offer is created once the on-chain escrow account is
// initialized and only ever moves forward: the on-chain outcome is
// irreversible, so there is no path back to REQUESTED.
const (
	OfferStatusRequested = "REQUESTED"
	OfferStatusAccepted  = "ACCEPTED"
	OfferStatusCanceled  = "CANCELED"
)

// Valid state transitions: from -> []to
var ValidOfferTransitions = map[string][]string{
	OfferStatusRequested: {OfferStatusAccepted, OfferStatusCanceled},
	OfferStatusAccepted:  {},
	OfferStatusCanceled:  {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidOfferTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Offer is the off-chain record of one escrow trade. EscrowAddress is the
// on-chain escrow account created for this offer and never changes once set.
type Offer struct {
	ID            uuid.UUID `json:"id"`
	BuyerAddress  string    `json:"buyer_address"`
	SellerAddress string    `json:"seller_address"`
	EscrowAddress string    `json:"escrow_address"`
	NFTAddress    string    `json:"nft_address"`
	OfferedAmount string    `json:"offered_amount"` // SOL, at most one fractional digit
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
