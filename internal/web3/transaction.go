package web3

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AssembleTransaction packages instructions, in the given order, into a single
// transaction paid for by feePayer. Order is preserved exactly: later
// instructions may depend on accounts created earlier in the same transaction.
//
// Ephemeral keypairs backing accounts created inside the transaction (the
// escrow account, temporary token accounts) co-sign here, before the primary
// wallet ever sees the transaction.
func AssembleTransaction(
	instructions []solana.Instruction,
	feePayer solana.PublicKey,
	recentBlockhash solana.Hash,
	ephemeralSigners ...solana.PrivateKey,
) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, recentBlockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}

	if len(ephemeralSigners) > 0 {
		if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
			for i := range ephemeralSigners {
				if ephemeralSigners[i].PublicKey().Equals(key) {
					return &ephemeralSigners[i]
				}
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("co-sign with ephemeral keypair: %w", err)
		}
	}

	return tx, nil
}
