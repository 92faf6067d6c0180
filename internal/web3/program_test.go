package web3

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func encodeEscrowAccount(t *testing.T, acc EscrowAccount) []byte {
	t.Helper()
	data := make([]byte, 0, EscrowAccountDataLen)
	data = append(data, escrowAccountDiscriminator...)
	data = append(data, acc.InitializerKey[:]...)
	data = append(data, acc.InitializerDepositTokenAccount[:]...)
	data = append(data, acc.InitializerReceiveWalletAccount[:]...)
	data = binary.LittleEndian.AppendUint64(data, acc.InitializerAmount)
	data = binary.LittleEndian.AppendUint64(data, acc.TakerAmount)
	return data
}

func TestDecodeEscrowAccount(t *testing.T) {
	want := EscrowAccount{
		InitializerKey:                  solana.NewWallet().PublicKey(),
		InitializerDepositTokenAccount:  solana.NewWallet().PublicKey(),
		InitializerReceiveWalletAccount: solana.NewWallet().PublicKey(),
		InitializerAmount:               1,
		TakerAmount:                     10_400_000_000,
	}

	got, err := DecodeEscrowAccount(encodeEscrowAccount(t, want))
	if err != nil {
		t.Fatal(err)
	}
	if *got != want {
		t.Errorf("decoded %+v, want %+v", *got, want)
	}
}

func TestDecodeEscrowAccountRejectsBadData(t *testing.T) {
	valid := encodeEscrowAccount(t, EscrowAccount{TakerAmount: 7})

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"truncated", valid[:EscrowAccountDataLen-1]},
		{"oversized", append(append([]byte{}, valid...), 0)},
		{"token account sized", make([]byte, TokenAccountDataLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEscrowAccount(tt.data); err == nil {
				t.Error("want error, got nil")
			}
		})
	}

	t.Run("wrong discriminator", func(t *testing.T) {
		bad := append([]byte{}, valid...)
		bad[0] ^= 0xff
		if _, err := DecodeEscrowAccount(bad); err == nil {
			t.Error("want error, got nil")
		}
	})
}
