package web3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ErrAccountNotFound is returned by GetAccountData when no account exists at
// the queried address.
var ErrAccountNotFound = errors.New("account not found")

// ErrConfirmationTimeout means the confirmation wait ran out. The transaction
// may still land: the on-chain outcome is UNKNOWN and callers must not record
// it as either success or failure.
var ErrConfirmationTimeout = errors.New("transaction not confirmed within timeout")

// SubmissionError wraps an RPC failure while sending a transaction.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit transaction: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// Client talks to a Solana RPC endpoint at a fixed commitment level.
type Client struct {
	rpc             *rpc.Client
	commitment      rpc.CommitmentType
	confirmTimeout  time.Duration
	confirmInterval time.Duration
	log             *zap.Logger
}

// NewClient builds a client. commitment must be "confirmed" or "finalized";
// anything else falls back to confirmed, the weakest level an offer record
// may be advanced on.
func NewClient(endpoint, commitment string, confirmTimeout, confirmInterval time.Duration, log *zap.Logger) *Client {
	level := rpc.CommitmentConfirmed
	if commitment == "finalized" {
		level = rpc.CommitmentFinalized
	}
	if confirmInterval <= 0 {
		confirmInterval = 500 * time.Millisecond
	}
	return &Client{
		rpc:             rpc.New(endpoint),
		commitment:      level,
		confirmTimeout:  confirmTimeout,
		confirmInterval: confirmInterval,
		log:             log,
	}
}

// GetAccountData fetches an account's raw stored bytes, or ErrAccountNotFound.
func (c *Client) GetAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account info for %s: %w", addr, err)
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}
	return res.Value.Data.GetBinary(), nil
}

// CheckTokenAccount fetches and classifies a candidate associated token
// account against the expected mint.
func (c *Client) CheckTokenAccount(ctx context.Context, addr, mint solana.PublicKey) (TokenAccountStatus, error) {
	data, err := c.GetAccountData(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return TokenAccountNotFound, nil
	}
	if err != nil {
		return TokenAccountNotFound, err
	}
	return ClassifyTokenAccount(data, mint), nil
}

// LatestBlockhash fetches a recent blockhash to anchor a new transaction.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

// SubmitTransaction runs the full signing protocol: obtain the wallet's
// countersignature, send, then wait for confirmation at the client's
// commitment level. On any error the caller must treat the off-chain record
// as untouched — only a nil return means the transaction is final enough to
// act on.
func (c *Client) SubmitTransaction(ctx context.Context, tx *solana.Transaction, signer Signer) (solana.Signature, error) {
	if err := signer.SignTransaction(ctx, tx); err != nil {
		return solana.Signature{}, err
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, &SubmissionError{Err: err}
	}

	c.log.Debug("transaction sent", zap.Stringer("signature", sig))

	if err := c.confirm(ctx, sig); err != nil {
		return sig, err
	}

	c.log.Info("transaction confirmed",
		zap.Stringer("signature", sig),
		zap.String("commitment", string(c.commitment)),
	)
	return sig, nil
}

// confirm polls signature status until the commitment level is reached, the
// transaction errors, or the bounded wait expires.
func (c *Client) confirm(ctx context.Context, sig solana.Signature) error {
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(c.confirmInterval)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", sig, st.Err)
			}
			if confirmationReached(st.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return ErrConfirmationTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func confirmationReached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}
