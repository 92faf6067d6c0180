package repositories

import (
	"context"

	"github.com/arunavo4/sol-sell-escrow/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// RecordLogin upserts the wallet row, bumping last_login_at on repeat logins.
func (r *WalletRepo) RecordLogin(ctx context.Context, address string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, first_seen_at, last_login_at)
		VALUES ($1, now(), now())
		ON CONFLICT (address) DO UPDATE SET last_login_at = now()
		RETURNING address, first_seen_at, last_login_at
	`, address).Scan(&w.Address, &w.FirstSeenAt, &w.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) Get(ctx context.Context, address string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT address, first_seen_at, last_login_at FROM wallets WHERE address = $1
	`, address).Scan(&w.Address, &w.FirstSeenAt, &w.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
