package web3

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

func tokenAccountData(mint solana.PublicKey) []byte {
	data := make([]byte, TokenAccountDataLen)
	copy(data[:32], mint[:])
	return data
}

func TestClassifyTokenAccount(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	otherMint := solana.NewWallet().PublicKey()

	tests := []struct {
		name string
		data []byte
		want TokenAccountStatus
	}{
		{"no data", nil, TokenAccountNotFound},
		{"empty data", []byte{}, TokenAccountNotFound},
		{"short data", make([]byte, 64), TokenAccountWrongLayout},
		{"long data", make([]byte, TokenAccountDataLen+1), TokenAccountWrongLayout},
		{"wrong mint", tokenAccountData(otherMint), TokenAccountMintMismatch},
		{"matching", tokenAccountData(mint), TokenAccountExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTokenAccount(tt.data, mint); got != tt.want {
				t.Errorf("ClassifyTokenAccount = %s, want %s", got, tt.want)
			}
		})
	}
}
