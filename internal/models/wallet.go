package models

import "time"

// Wallet is a connected Solana wallet that has completed sign-in at least once.
type Wallet struct {
	Address     string    `json:"address"` // base58 public key
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}
