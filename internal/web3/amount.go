package web3

import (
	"fmt"
	"strconv"
	"strings"
)

// LamportsPerSOL is the chain's base-unit scale.
const LamportsPerSOL = 1_000_000_000

// MaxAmount caps an offer at one billion SOL, beyond any circulating supply.
// The cap leaves headroom so amount-plus-fee arithmetic stays inside uint64.
const MaxAmount Amount = 1_000_000_000 * LamportsPerSOL

// Amount is a SOL amount in lamports. Offers quote amounts with a fixed scale
// of one decimal digit of SOL, so every valid Amount is a multiple of
// LamportsPerSOL/10; conversion to the chain's integer units happens here and
// nowhere else.
type Amount uint64

// ParseAmount parses a decimal SOL amount such as "10" or "10.5". Amounts with
// more than one fractional digit, non-positive amounts, and malformed input
// are rejected before anything touches the chain.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is empty")
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 1 {
		return 0, fmt.Errorf("amount %q has more than one decimal digit", s)
	}

	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if w > uint64(MaxAmount)/LamportsPerSOL {
		return 0, fmt.Errorf("amount %q exceeds %d SOL", s, uint64(MaxAmount)/LamportsPerSOL)
	}
	lamports := w * LamportsPerSOL

	if frac != "" {
		d := frac[0]
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		lamports += uint64(d-'0') * (LamportsPerSOL / 10)
	}
	if Amount(lamports) > MaxAmount {
		return 0, fmt.Errorf("amount %q exceeds %d SOL", s, uint64(MaxAmount)/LamportsPerSOL)
	}

	if lamports == 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return Amount(lamports), nil
}

// IsValidAmount reports whether s is a positive SOL amount with at most one
// fractional digit.
func IsValidAmount(s string) bool {
	_, err := ParseAmount(s)
	return err == nil
}

// Fee returns the platform fee for this amount at the given integer
// percentage. The split keeps the multiplication inside uint64 for any amount
// up to MaxAmount; valid amounts are multiples of 0.1 SOL, so the division is
// exact for any percentage and repeated calls always agree.
func (a Amount) Fee(percent int) Amount {
	p := Amount(percent)
	return a/100*p + a%100*p/100
}

// WithFee returns the total the escrow program will charge the taker:
// the offered amount plus the fee.
func (a Amount) WithFee(percent int) Amount {
	return a + a.Fee(percent)
}

// Lamports returns the raw chain units.
func (a Amount) Lamports() uint64 {
	return uint64(a)
}

// String renders the amount in SOL with a single decimal digit, e.g. "10.4".
func (a Amount) String() string {
	whole := uint64(a) / LamportsPerSOL
	tenth := (uint64(a) % LamportsPerSOL) / (LamportsPerSOL / 10)
	if uint64(a)%(LamportsPerSOL/10) != 0 {
		// Not representable at scale 1; fall back to full precision.
		return strconv.FormatFloat(float64(a)/LamportsPerSOL, 'f', -1, 64)
	}
	if tenth == 0 {
		return fmt.Sprintf("%d.0", whole)
	}
	return fmt.Sprintf("%d.%d", whole, tenth)
}
