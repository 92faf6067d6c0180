package web3

import (
	"github.com/gagliardetto/solana-go"
)

// TokenAccountDataLen is the fixed size of an SPL token account.
const TokenAccountDataLen = 165

// TokenAccountStatus classifies a candidate associated token account before a
// create instruction is issued. Creating an account that already exists fails
// on-chain, so the checks are done up front.
type TokenAccountStatus int

const (
	TokenAccountNotFound TokenAccountStatus = iota
	TokenAccountWrongLayout
	TokenAccountMintMismatch
	TokenAccountExists
)

func (s TokenAccountStatus) String() string {
	switch s {
	case TokenAccountNotFound:
		return "not_found"
	case TokenAccountWrongLayout:
		return "wrong_layout"
	case TokenAccountMintMismatch:
		return "mint_mismatch"
	case TokenAccountExists:
		return "exists"
	}
	return "unknown"
}

// ClassifyTokenAccount inspects raw account data against the fixed SPL token
// account layout (mint occupies the first 32 bytes) and the expected mint.
func ClassifyTokenAccount(data []byte, mint solana.PublicKey) TokenAccountStatus {
	if len(data) == 0 {
		return TokenAccountNotFound
	}
	if len(data) != TokenAccountDataLen {
		return TokenAccountWrongLayout
	}
	stored := solana.PublicKeyFromBytes(data[:32])
	if !stored.Equals(mint) {
		return TokenAccountMintMismatch
	}
	return TokenAccountExists
}
