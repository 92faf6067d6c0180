package web3

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SPL token program instruction selectors (single-byte tags).
const (
	tokenInstructionInitializeAccount = 1
	tokenInstructionTransfer          = 3
	tokenInstructionCloseAccount      = 9
)

// System program instruction index (4-byte little-endian tag).
const systemInstructionCreateAccount = 0

// The builders below are pure data transforms: fully-resolved keys and
// amounts in, one instruction out. No I/O, no business validation — the
// orchestration layer validates before any builder runs.

// NewCreateAccountInstruction allocates space and rent-exempt lamports for a
// fresh account owned by the given program. The new account must co-sign.
func NewCreateAccountInstruction(payer, newAccount solana.PublicKey, lamports, space uint64, owner solana.PublicKey) solana.Instruction {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	_ = enc.WriteUint32(systemInstructionCreateAccount, binary.LittleEndian)
	_ = enc.WriteUint64(lamports, binary.LittleEndian)
	_ = enc.WriteUint64(space, binary.LittleEndian)
	_ = enc.WriteBytes(owner[:], false)

	return solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(newAccount).WRITE().SIGNER(),
		},
		buf.Bytes(),
	)
}

// NewInitializeTokenAccountInstruction initializes a token account for the
// given mint, owned by owner. Used only when wrapping native SOL into its
// token representation before a deposit.
func NewInitializeTokenAccountInstruction(account, mint, owner solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.Meta(account).WRITE(),
			solana.Meta(mint),
			solana.Meta(owner),
			solana.Meta(solana.SysVarRentPubkey),
		},
		[]byte{tokenInstructionInitializeAccount},
	)
}

// NewTransferTokensInstruction moves amount tokens between two token accounts
// of the same mint, authorized by owner.
func NewTransferTokensInstruction(source, destination, owner solana.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = tokenInstructionTransfer
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.Meta(source).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(owner).SIGNER(),
		},
		data,
	)
}

// NewCreateAssociatedTokenAccountInstruction creates the canonical associated
// token account for (owner, mint), funded by payer. The address must be the
// one derived by AssociatedTokenAddress for the same pair.
func NewCreateAssociatedTokenAccountInstruction(payer, owner, mint, associatedAccount solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(associatedAccount).WRITE(),
			solana.Meta(owner),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.TokenProgramID),
			solana.Meta(solana.SysVarRentPubkey),
		},
		nil,
	)
}

// NewCloseAccountInstruction closes a temporary token account, reclaiming its
// rent lamports to destination.
func NewCloseAccountInstruction(account, destination, owner solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.Meta(account).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(owner).SIGNER(),
		},
		[]byte{tokenInstructionCloseAccount},
	)
}

// NewInitializeEscrowInstruction opens the escrow: the program records the
// trade terms in escrowAccount and takes authority over the deposit token
// account. initializerAmount is the token quantity deposited (1 for an NFT),
// takerAmount the lamports the taker must pay, fee included.
func NewInitializeEscrowInstruction(
	programID solana.PublicKey,
	initializer, depositTokenAccount, receiveWalletAccount, escrowAccount solana.PublicKey,
	initializerAmount, takerAmount uint64,
) solana.Instruction {
	data := make([]byte, 0, 24)
	data = append(data, initializeEscrowDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, initializerAmount)
	data = binary.LittleEndian.AppendUint64(data, takerAmount)

	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.Meta(initializer).WRITE().SIGNER(),
			solana.Meta(depositTokenAccount).WRITE(),
			solana.Meta(receiveWalletAccount),
			solana.Meta(escrowAccount).WRITE().SIGNER(),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.TokenProgramID),
		},
		data,
	)
}

// NewExchangeInstruction settles the trade: the program releases the deposit
// to the taker, moves the escrowed lamports to the initializer's receive
// account, and closes the escrow account. No arguments — every term was fixed
// at initialization.
func NewExchangeInstruction(
	programID solana.PublicKey,
	taker, takerReceiveTokenAccount, pdaDepositTokenAccount,
	initializerReceiveWalletAccount, initializerMainAccount,
	escrowAccount, pdaAccount solana.PublicKey,
) solana.Instruction {
	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.Meta(taker).WRITE().SIGNER(),
			solana.Meta(takerReceiveTokenAccount).WRITE(),
			solana.Meta(pdaDepositTokenAccount).WRITE(),
			solana.Meta(initializerReceiveWalletAccount).WRITE(),
			solana.Meta(initializerMainAccount).WRITE(),
			solana.Meta(escrowAccount).WRITE(),
			solana.Meta(pdaAccount),
			solana.Meta(solana.TokenProgramID),
			solana.Meta(solana.SystemProgramID),
		},
		append([]byte(nil), exchangeDiscriminator...),
	)
}

// NewCancelEscrowInstruction aborts the trade: authority over the deposit
// token account returns to the initializer and the escrow account closes.
func NewCancelEscrowInstruction(
	programID solana.PublicKey,
	initializer, pdaDepositTokenAccount, pdaAccount, escrowAccount solana.PublicKey,
) solana.Instruction {
	return solana.NewInstruction(
		programID,
		solana.AccountMetaSlice{
			solana.Meta(initializer).WRITE().SIGNER(),
			solana.Meta(pdaDepositTokenAccount).WRITE(),
			solana.Meta(pdaAccount),
			solana.Meta(escrowAccount).WRITE(),
			solana.Meta(solana.TokenProgramID),
		},
		append([]byte(nil), cancelEscrowDiscriminator...),
	)
}
