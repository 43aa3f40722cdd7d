package models

import "github.com/shopspring/decimal"

// ConnectRequest opens a session for the given wallet address.
type ConnectRequest struct {
	Account string `json:"account" binding:"required"`
}

// SendTipRequest submits one transfer from the connected account.
type SendTipRequest struct {
	Recipient string          `json:"recipient" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
}

// SendTipResponse is returned once the transfer settled and the receipt was
// written.
type SendTipResponse struct {
	Receipt     Receipt `json:"receipt"`
	Signature   string  `json:"signature"`
	ExplorerURL string  `json:"explorerUrl"`
}

// RetryReceiptRequest re-runs only the persistence step for a transfer that
// already settled on the ledger (txHash known from the failed attempt).
type RetryReceiptRequest struct {
	Recipient string          `json:"recipient" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
	TxHash    string          `json:"txHash" binding:"required"`
}
