package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferRequest is one user-initiated transfer. It is immutable once
// submission begins; a retry builds a new request.
type TransferRequest struct {
	Recipient string
	Amount    decimal.Decimal
	Note      string
}

// Receipt is the off-ledger record of a confirmed transfer. Receipts are
// written exactly once per confirmed transfer and never mutated afterwards.
type Receipt struct {
	ID             string          `json:"id"`
	FromAccount    string          `json:"fromWallet"`
	ToAccount      string          `json:"toWallet"`
	Amount         decimal.Decimal `json:"amount"`
	Note           string          `json:"message,omitempty"`
	RecordedAt     time.Time       `json:"timestamp"`
	TransactionRef string          `json:"txHash"`
}

// BalanceSnapshot is the oracle's last known spendable balance. Known is false
// until the first successful poll of a session.
type BalanceSnapshot struct {
	Value      decimal.Decimal
	Known      bool
	ObservedAt time.Time
}

// MirrorView is the live history view: receipts of the active account ordered
// by RecordedAt descending. It is replaced wholesale on every store delivery,
// never patched in place.
type MirrorView []Receipt
