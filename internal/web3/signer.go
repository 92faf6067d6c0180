package web3

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrSignerRejected is returned when the wallet's human declined to sign.
// It is a benign cancellation, not a system fault: nothing was submitted and
// nothing changed.
var ErrSignerRejected = errors.New("wallet rejected the transaction")

// Signer is the wallet capability this package needs: it can report its
// public key and countersign a transaction. Signing may suspend indefinitely
// while a human decides; implementations must honor ctx cancellation and
// return ErrSignerRejected on decline.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// LocalSigner signs with an in-process private key. Used by tests and any
// deployment that holds its own keypair; interactive wallets implement Signer
// elsewhere.
type LocalSigner struct {
	key solana.PrivateKey
}

func NewLocalSigner(key solana.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

func (s *LocalSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *LocalSigner) SignTransaction(_ context.Context, tx *solana.Transaction) error {
	pub := s.key.PublicKey()
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &s.key
		}
		return nil
	}); err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}
