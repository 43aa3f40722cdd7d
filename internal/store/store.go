package store

import (
	"context"
	"errors"

	"OneTapTip/internal/models"
)

var ErrNotFound = errors.New("receipt not found")

// ReceiptStore is the secondary store collaborator. Add is a pure append: the
// store assigns the id and, when absent, the recorded-at timestamp. It does
// not deduplicate; callers that need idempotence look up by transaction ref
// before inserting.
type ReceiptStore interface {
	Add(ctx context.Context, r models.Receipt) (models.Receipt, error)
	FindByTransactionRef(ctx context.Context, fromAccount, txRef string) (models.Receipt, error)
	Watch(ctx context.Context, fromAccount string) (Subscription, error)
}

// Subscription is a standing query over receipts with fromAccount == account.
// Every delivery is the full current result set, at least once, with no
// ordering guarantee on the filtered field. Close releases the store-side
// watch; deliveries already in flight at close time are discarded by the
// consumer, not by the store.
type Subscription interface {
	Snapshots() <-chan []models.Receipt
	Err() <-chan error
	Close()
}
