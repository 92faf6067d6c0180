// Package web3 holds the on-chain side of the escrow trade flow: address
// derivation, instruction construction, transaction assembly, and the
// sign/submit/confirm protocol against a Solana RPC endpoint.
//
// The escrow program itself is an external, fixed contract. Everything in this
// package must match its binary interface exactly — instruction selectors,
// argument layout, and account ordering — because a mismatch is not reported
// client-side, it just fails on-chain.
package web3

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DefaultEscrowProgramID is the deployed escrow program.
const DefaultEscrowProgramID = "7V3CWKtaLtYqx82Rm96ph8DutCP2LQpfkz8URpH3XAxT"

// escrowAuthoritySeed is the PDA seed hard-coded in the program.
const escrowAuthoritySeed = "escrow"

// anchorDiscriminator returns the 8-byte instruction selector the program's
// dispatcher matches on: sha256("global:<method>")[..8].
func anchorDiscriminator(method string) []byte {
	h := sha256.Sum256([]byte("global:" + method))
	return h[:8]
}

// anchorAccountDiscriminator is the analogous 8-byte tag prefixed to
// program-owned account data: sha256("account:<Name>")[..8].
func anchorAccountDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("account:" + name))
	return h[:8]
}

var (
	initializeEscrowDiscriminator = anchorDiscriminator("initialize_escrow")
	exchangeDiscriminator         = anchorDiscriminator("exchange")
	cancelEscrowDiscriminator     = anchorDiscriminator("cancel_escrow")

	escrowAccountDiscriminator = anchorAccountDiscriminator("EscrowAccount")
)

// EscrowAccountDataLen is the stored size of an escrow account:
// discriminator + three pubkeys + two u64 amounts.
const EscrowAccountDataLen = 8 + 32*3 + 8*2

// EscrowAccount mirrors the program's escrow state. Read-only on this side;
// it is only ever mutated by the program itself.
type EscrowAccount struct {
	InitializerKey                  solana.PublicKey
	InitializerDepositTokenAccount  solana.PublicKey
	InitializerReceiveWalletAccount solana.PublicKey
	InitializerAmount               uint64
	TakerAmount                     uint64
}

// DecodeEscrowAccount parses raw escrow account data fetched from the chain.
func DecodeEscrowAccount(data []byte) (*EscrowAccount, error) {
	if len(data) != EscrowAccountDataLen {
		return nil, fmt.Errorf("escrow account data is %d bytes, want %d", len(data), EscrowAccountDataLen)
	}
	for i, b := range escrowAccountDiscriminator {
		if data[i] != b {
			return nil, fmt.Errorf("escrow account discriminator mismatch")
		}
	}

	dec := bin.NewBorshDecoder(data[8:])
	var acc EscrowAccount
	for _, key := range []*solana.PublicKey{
		&acc.InitializerKey,
		&acc.InitializerDepositTokenAccount,
		&acc.InitializerReceiveWalletAccount,
	} {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, fmt.Errorf("decode escrow account: %w", err)
		}
		*key = solana.PublicKeyFromBytes(raw)
	}

	var err error
	if acc.InitializerAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode escrow account: %w", err)
	}
	if acc.TakerAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("decode escrow account: %w", err)
	}
	return &acc, nil
}
