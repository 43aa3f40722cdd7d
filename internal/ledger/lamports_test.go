package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToLamports(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"0.5", 500_000_000},
		{"1", 1_000_000_000},
		{"0.000000001", 1},
		// Sub-lamport fractions truncate toward zero, never up.
		{"1.0000000019", 1_000_000_001},
		{"0.123456789123", 123_456_789},
	}
	for _, c := range cases {
		got, err := ToLamports(decimal.RequireFromString(c.in))
		if err != nil {
			t.Fatalf("ToLamports(%s): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ToLamports(%s) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestToLamportsRejects(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"0", ErrNonPositiveAmount},
		{"-1", ErrNonPositiveAmount},
		{"0.0000000001", ErrAmountTooSmall}, // below one lamport
		{"30000000000", ErrAmountTooLarge},
	}
	for _, c := range cases {
		_, err := ToLamports(decimal.RequireFromString(c.in))
		if !errors.Is(err, c.want) {
			t.Errorf("ToLamports(%s) error = %v, want %v", c.in, err, c.want)
		}
	}
}

func TestFromLamports(t *testing.T) {
	if got := FromLamports(1_500_000_000); got.String() != "1.5" {
		t.Errorf("FromLamports(1.5e9) = %s, want 1.5", got)
	}
	if got := FromLamports(1); got.String() != "0.000000001" {
		t.Errorf("FromLamports(1) = %s, want 0.000000001", got)
	}
}
