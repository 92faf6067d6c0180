package escrow

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/arunavo4/sol-sell-escrow/internal/web3"
)

// ErrOfferNotFound means no offer record exists for the given id.
var ErrOfferNotFound = errors.New("offer not found")

// ValidationError rejects bad input before any I/O. The user corrects the
// input and retries; nothing on-chain or in the store was touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransitionError rejects an action on an offer that is not in a state the
// action can leave from. Raised before any on-chain call.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("offer cannot move from %s to %s", e.From, e.To)
}

// AccountExistenceError means a derived associated token account exists but is
// not usable: wrong size or wrong mint. Creating over it would fail on-chain,
// so the trade stops here instead.
type AccountExistenceError struct {
	Address solana.PublicKey
	Status  web3.TokenAccountStatus
}

func (e *AccountExistenceError) Error() string {
	return fmt.Sprintf("token account %s is unusable: %s", e.Address, e.Status)
}
