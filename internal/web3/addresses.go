package web3

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AddressDerivationError reports that no valid off-curve address exists for a
// derivation. The bump search is bounded (0-255), so in practice this never
// fires, but it is a reported error rather than a crash.
type AddressDerivationError struct {
	What string
	Err  error
}

func (e *AddressDerivationError) Error() string {
	return fmt.Sprintf("derive %s: %v", e.What, e.Err)
}

func (e *AddressDerivationError) Unwrap() error { return e.Err }

// EscrowAuthority derives the PDA that holds signing authority over tokens
// deposited with the escrow program. Pure: same program id always yields the
// same address and bump, with no network access.
func EscrowAuthority(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	pda, bump, err := solana.FindProgramAddress([][]byte{[]byte(escrowAuthoritySeed)}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, &AddressDerivationError{What: "escrow authority", Err: err}
	}
	return pda, bump, nil
}

// AssociatedTokenAddress derives the canonical associated token account for
// (owner, mint). Deterministic, offline.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, &AddressDerivationError{
			What: fmt.Sprintf("associated token account for %s/%s", owner, mint),
			Err:  err,
		}
	}
	return addr, nil
}
