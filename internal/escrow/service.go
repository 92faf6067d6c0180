package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/arunavo4/sol-sell-escrow/internal/config"
	"github.com/arunavo4/sol-sell-escrow/internal/events"
	"github.com/arunavo4/sol-sell-escrow/internal/models"
	"github.com/arunavo4/sol-sell-escrow/internal/repositories"
	"github.com/arunavo4/sol-sell-escrow/internal/web3"
)

// OfferStore is the slice of the offer repository the trade flow needs.
type OfferStore interface {
	Create(ctx context.Context, o *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	GetByEscrowAddress(ctx context.Context, escrowAddress string) (*models.Offer, error)
	List(ctx context.Context, f repositories.OfferFilter) ([]models.Offer, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// ChainClient is the RPC surface the trade flow needs; *web3.Client satisfies
// it, tests substitute a fake.
type ChainClient interface {
	GetAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	CheckTokenAccount(ctx context.Context, addr, mint solana.PublicKey) (web3.TokenAccountStatus, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SubmitTransaction(ctx context.Context, tx *solana.Transaction, signer web3.Signer) (solana.Signature, error)
}

// OfferService orchestrates the trade flows: validate, resolve accounts, build
// and submit the on-chain transaction, and only then move the offer record.
type OfferService struct {
	offers     OfferStore
	chain      ChainClient
	publisher  events.Publisher
	programID  solana.PublicKey
	feePercent int
	log        *zap.Logger
}

func NewOfferService(offers OfferStore, chain ChainClient, publisher events.Publisher, cfg *config.Config, log *zap.Logger) (*OfferService, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.EscrowProgramID)
	if err != nil {
		return nil, fmt.Errorf("parse escrow program id %q: %w", cfg.EscrowProgramID, err)
	}
	return &OfferService{
		offers:     offers,
		chain:      chain,
		publisher:  publisher,
		programID:  programID,
		feePercent: cfg.FeePercentage,
		log:        log,
	}, nil
}

// transition validates and performs a status transition, then publishes the
// change. The store write happens only after the chain already confirmed.
func (s *OfferService) transition(ctx context.Context, offer *models.Offer, newStatus string) error {
	if !models.IsValidTransition(offer.Status, newStatus) {
		return &TransitionError{From: offer.Status, To: newStatus}
	}

	oldStatus := offer.Status
	if err := s.offers.UpdateStatus(ctx, offer.ID, newStatus); err != nil {
		return fmt.Errorf("update offer %s status: %w", offer.ID, err)
	}
	offer.Status = newStatus

	s.publishStatus(ctx, offer, oldStatus)
	return nil
}

func (s *OfferService) publishStatus(ctx context.Context, offer *models.Offer, oldStatus string) {
	_ = s.publisher.Publish(ctx, events.StreamOffers, events.Event{
		Type: events.EventOfferStatusChanged,
		Payload: map[string]any{
			"offer_id":       offer.ID.String(),
			"buyer_address":  offer.BuyerAddress,
			"seller_address": offer.SellerAddress,
			"old_status":     oldStatus,
			"new_status":     offer.Status,
		},
	})
}

type RequestOfferInput struct {
	BuyerAddress string
	NFTAddress   string
	Amount       string
}

// RequestOffer opens a trade: the seller deposits the NFT into a fresh escrow
// account priced at amount plus the platform fee. The signer is the seller's
// wallet. Only after the initialization confirms on-chain is the offer record
// created, in REQUESTED.
func (s *OfferService) RequestOffer(ctx context.Context, in RequestOfferInput, signer web3.Signer) (*models.Offer, error) {
	amount, err := web3.ParseAmount(in.Amount)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	buyer, err := solana.PublicKeyFromBase58(in.BuyerAddress)
	if err != nil {
		return nil, &ValidationError{Field: "buyer_address", Reason: "not a valid public key"}
	}
	nftMint, err := solana.PublicKeyFromBase58(in.NFTAddress)
	if err != nil {
		return nil, &ValidationError{Field: "nft_address", Reason: "not a valid public key"}
	}
	seller := signer.PublicKey()
	if buyer.Equals(seller) {
		return nil, &ValidationError{Field: "buyer_address", Reason: "buyer and seller are the same wallet"}
	}

	// The seller receives the payment in native SOL through their associated
	// native-mint account; make sure it exists before the escrow references it.
	sellerSOLAccount, err := web3.AssociatedTokenAddress(seller, solana.SolMint)
	if err != nil {
		return nil, err
	}
	sellerNFTAccount, err := web3.AssociatedTokenAddress(seller, nftMint)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	status, err := s.chain.CheckTokenAccount(ctx, sellerSOLAccount, solana.SolMint)
	if err != nil {
		return nil, fmt.Errorf("check seller payment account: %w", err)
	}
	switch status {
	case web3.TokenAccountNotFound:
		instructions = append(instructions,
			web3.NewCreateAssociatedTokenAccountInstruction(seller, seller, solana.SolMint, sellerSOLAccount))
	case web3.TokenAccountExists:
		// Already usable.
	default:
		return nil, &AccountExistenceError{Address: sellerSOLAccount, Status: status}
	}

	escrowAccount := solana.NewWallet()
	instructions = append(instructions, web3.NewInitializeEscrowInstruction(
		s.programID,
		seller,
		sellerNFTAccount,
		seller,
		escrowAccount.PublicKey(),
		1,
		amount.WithFee(s.feePercent).Lamports(),
	))

	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := web3.AssembleTransaction(instructions, seller, blockhash, escrowAccount.PrivateKey)
	if err != nil {
		return nil, err
	}

	sig, err := s.chain.SubmitTransaction(ctx, tx, signer)
	if err != nil {
		return nil, err
	}

	offer := &models.Offer{
		BuyerAddress:  buyer.String(),
		SellerAddress: seller.String(),
		EscrowAddress: escrowAccount.PublicKey().String(),
		NFTAddress:    nftMint.String(),
		OfferedAmount: amount.String(),
		Status:        models.OfferStatusRequested,
	}
	if err := s.offers.Create(ctx, offer); err != nil {
		// The escrow is live on-chain but the record failed to persist; the
		// reconciliation sweep will not see it, so this must be loud.
		s.log.Error("escrow initialized but offer record not persisted",
			zap.String("escrow_address", offer.EscrowAddress),
			zap.Stringer("signature", sig),
			zap.Error(err),
		)
		return nil, fmt.Errorf("persist offer for escrow %s: %w", offer.EscrowAddress, err)
	}

	s.log.Info("offer requested",
		zap.String("offer_id", offer.ID.String()),
		zap.String("escrow_address", offer.EscrowAddress),
		zap.String("amount", offer.OfferedAmount),
		zap.Stringer("signature", sig),
	)
	s.publishStatus(ctx, offer, "")
	return offer, nil
}

// AcceptOffer settles a trade: the buyer pays the escrowed price and receives
// the NFT. The signer is the buyer's wallet. The offer must still be in
// REQUESTED; anything else is rejected before any chain call.
func (s *OfferService) AcceptOffer(ctx context.Context, id uuid.UUID, signer web3.Signer) (*models.Offer, error) {
	offer, err := s.getOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	buyer := signer.PublicKey()
	if offer.BuyerAddress != buyer.String() {
		return nil, &ValidationError{Field: "caller", Reason: "only the offer's buyer can accept"}
	}
	if !models.IsValidTransition(offer.Status, models.OfferStatusAccepted) {
		return nil, &TransitionError{From: offer.Status, To: models.OfferStatusAccepted}
	}

	escrowAddr, nftMint, err := offerKeys(offer)
	if err != nil {
		return nil, err
	}

	data, err := s.chain.GetAccountData(ctx, escrowAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch escrow account %s: %w", escrowAddr, err)
	}
	state, err := web3.DecodeEscrowAccount(data)
	if err != nil {
		return nil, err
	}

	buyerNFTAccount, err := web3.AssociatedTokenAddress(buyer, nftMint)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	status, err := s.chain.CheckTokenAccount(ctx, buyerNFTAccount, nftMint)
	if err != nil {
		return nil, fmt.Errorf("check buyer receiving account: %w", err)
	}
	switch status {
	case web3.TokenAccountNotFound:
		instructions = append(instructions,
			web3.NewCreateAssociatedTokenAccountInstruction(buyer, buyer, nftMint, buyerNFTAccount))
	case web3.TokenAccountExists:
	default:
		return nil, &AccountExistenceError{Address: buyerNFTAccount, Status: status}
	}

	pda, _, err := web3.EscrowAuthority(s.programID)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, web3.NewExchangeInstruction(
		s.programID,
		buyer,
		buyerNFTAccount,
		state.InitializerDepositTokenAccount,
		state.InitializerReceiveWalletAccount,
		state.InitializerKey,
		escrowAddr,
		pda,
	))

	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := web3.AssembleTransaction(instructions, buyer, blockhash)
	if err != nil {
		return nil, err
	}
	sig, err := s.chain.SubmitTransaction(ctx, tx, signer)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, offer, models.OfferStatusAccepted); err != nil {
		return nil, err
	}
	s.log.Info("offer accepted",
		zap.String("offer_id", offer.ID.String()),
		zap.String("escrow_address", offer.EscrowAddress),
		zap.Stringer("signature", sig),
	)
	return offer, nil
}

// CancelOffer aborts a trade: the seller takes the NFT back and the escrow
// account closes. The signer is the seller's wallet. Same fail-fast state
// check as AcceptOffer.
func (s *OfferService) CancelOffer(ctx context.Context, id uuid.UUID, signer web3.Signer) (*models.Offer, error) {
	offer, err := s.getOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	seller := signer.PublicKey()
	if offer.SellerAddress != seller.String() {
		return nil, &ValidationError{Field: "caller", Reason: "only the offer's seller can cancel"}
	}
	if !models.IsValidTransition(offer.Status, models.OfferStatusCanceled) {
		return nil, &TransitionError{From: offer.Status, To: models.OfferStatusCanceled}
	}

	escrowAddr, nftMint, err := offerKeys(offer)
	if err != nil {
		return nil, err
	}

	// The deposit account held by the program authority is the seller's NFT
	// associated account, same derivation as at request time.
	depositAccount, err := web3.AssociatedTokenAddress(seller, nftMint)
	if err != nil {
		return nil, err
	}
	pda, _, err := web3.EscrowAuthority(s.programID)
	if err != nil {
		return nil, err
	}

	instruction := web3.NewCancelEscrowInstruction(s.programID, seller, depositAccount, pda, escrowAddr)

	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := web3.AssembleTransaction([]solana.Instruction{instruction}, seller, blockhash)
	if err != nil {
		return nil, err
	}
	sig, err := s.chain.SubmitTransaction(ctx, tx, signer)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, offer, models.OfferStatusCanceled); err != nil {
		return nil, err
	}
	s.log.Info("offer canceled",
		zap.String("offer_id", offer.ID.String()),
		zap.String("escrow_address", offer.EscrowAddress),
		zap.Stringer("signature", sig),
	)
	return offer, nil
}

func (s *OfferService) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return s.getOffer(ctx, id)
}

// ResolveEscrow looks up the offer tracking the given on-chain escrow account,
// letting a wallet map an account it sees on-chain back to its trade.
func (s *OfferService) ResolveEscrow(ctx context.Context, escrowAddress string) (*models.Offer, error) {
	if _, err := solana.PublicKeyFromBase58(escrowAddress); err != nil {
		return nil, &ValidationError{Field: "escrow_address", Reason: "not a valid public key"}
	}
	offer, err := s.offers.GetByEscrowAddress(ctx, escrowAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer for escrow %s: %w", escrowAddress, err)
	}
	return offer, nil
}

func (s *OfferService) ListOffers(ctx context.Context, f repositories.OfferFilter) ([]models.Offer, error) {
	return s.offers.List(ctx, f)
}

// offerKeys parses the stored base58 addresses back into public keys.
func offerKeys(offer *models.Offer) (escrowAddr, nftMint solana.PublicKey, err error) {
	if escrowAddr, err = solana.PublicKeyFromBase58(offer.EscrowAddress); err != nil {
		return escrowAddr, nftMint, fmt.Errorf("stored escrow address %q: %w", offer.EscrowAddress, err)
	}
	if nftMint, err = solana.PublicKeyFromBase58(offer.NFTAddress); err != nil {
		return escrowAddr, nftMint, fmt.Errorf("stored nft address %q: %w", offer.NFTAddress, err)
	}
	return escrowAddr, nftMint, nil
}

func (s *OfferService) getOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer %s: %w", id, err)
	}
	return offer, nil
}
