package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the fixed divisor between the display unit (SOL) and the
// ledger's base unit.
const LamportsPerSOL = 1_000_000_000

var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrAmountTooSmall    = errors.New("amount is below one lamport")
	ErrAmountTooLarge    = errors.New("amount does not fit in lamports")
)

// ToLamports converts a display amount to base units. Fractions below one
// lamport truncate toward zero, never up, so a transfer can never spend more
// than the requested amount.
func ToLamports(amount decimal.Decimal) (uint64, error) {
	if amount.Sign() <= 0 {
		return 0, ErrNonPositiveAmount
	}
	lam := amount.Mul(decimal.NewFromInt(LamportsPerSOL)).Truncate(0)
	bi := lam.BigInt()
	if !bi.IsUint64() {
		return 0, ErrAmountTooLarge
	}
	v := bi.Uint64()
	if v == 0 {
		return 0, ErrAmountTooSmall
	}
	return v, nil
}

// FromLamports converts base units back to the display amount, exactly.
func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}
