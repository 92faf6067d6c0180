package repositories

import (
	"context"
	"fmt"

	"github.com/arunavo4/sol-sell-escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OfferRepo struct {
	pool *pgxpool.Pool
}

func NewOfferRepo(pool *pgxpool.Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

func (r *OfferRepo) Create(ctx context.Context, o *models.Offer) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO offers (buyer_address, seller_address, escrow_address, nft_address, offered_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, o.BuyerAddress, o.SellerAddress, o.EscrowAddress, o.NFTAddress, o.OfferedAmount, o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var o models.Offer
	err := r.pool.QueryRow(ctx, `
		SELECT id, buyer_address, seller_address, escrow_address, nft_address,
		       offered_amount, status, created_at, updated_at
		FROM offers WHERE id = $1
	`, id).Scan(&o.ID, &o.BuyerAddress, &o.SellerAddress, &o.EscrowAddress, &o.NFTAddress,
		&o.OfferedAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OfferRepo) GetByEscrowAddress(ctx context.Context, escrowAddress string) (*models.Offer, error) {
	var o models.Offer
	err := r.pool.QueryRow(ctx, `
		SELECT id, buyer_address, seller_address, escrow_address, nft_address,
		       offered_amount, status, created_at, updated_at
		FROM offers WHERE escrow_address = $1
	`, escrowAddress).Scan(&o.ID, &o.BuyerAddress, &o.SellerAddress, &o.EscrowAddress, &o.NFTAddress,
		&o.OfferedAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type OfferFilter struct {
	BuyerAddress  *string
	SellerAddress *string
	Status        *string
	Limit         int
	Offset        int
}

// List returns offers newest-activity first, matching the order trade history
// is shown in.
func (r *OfferRepo) List(ctx context.Context, f OfferFilter) ([]models.Offer, error) {
	query := `
		SELECT id, buyer_address, seller_address, escrow_address, nft_address,
		       offered_amount, status, created_at, updated_at
		FROM offers
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.BuyerAddress != nil {
		where = append(where, fmt.Sprintf("buyer_address = $%d", argIdx))
		args = append(args, *f.BuyerAddress)
		argIdx++
	}
	if f.SellerAddress != nil {
		where = append(where, fmt.Sprintf("seller_address = $%d", argIdx))
		args = append(args, *f.SellerAddress)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		var o models.Offer
		if err := rows.Scan(&o.ID, &o.BuyerAddress, &o.SellerAddress, &o.EscrowAddress, &o.NFTAddress,
			&o.OfferedAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, nil
}

func (r *OfferRepo) ListByStatus(ctx context.Context, status string, limit int) ([]models.Offer, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, buyer_address, seller_address, escrow_address, nft_address,
		       offered_amount, status, created_at, updated_at
		FROM offers WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		var o models.Offer
		if err := rows.Scan(&o.ID, &o.BuyerAddress, &o.SellerAddress, &o.EscrowAddress, &o.NFTAddress,
			&o.OfferedAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, nil
}

func (r *OfferRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE offers SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}
