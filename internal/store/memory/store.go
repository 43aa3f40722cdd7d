package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"OneTapTip/internal/models"
	"OneTapTip/internal/store"
)

// Store is an in-memory ReceiptStore used in tests and in dev mode when no
// Mongo URI is configured.
type Store struct {
	mu       sync.Mutex
	receipts []models.Receipt
	watchers map[*subscription]struct{}
}

func NewStore() *Store {
	return &Store{watchers: make(map[*subscription]struct{})}
}

func (s *Store) Add(ctx context.Context, r models.Receipt) (models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	s.receipts = append(s.receipts, r)

	for sub := range s.watchers {
		if sub.account == r.FromAccount {
			sub.deliver(s.snapshotLocked(sub.account))
		}
	}
	return r, nil
}

func (s *Store) FindByTransactionRef(ctx context.Context, fromAccount, txRef string) (models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.receipts {
		if r.FromAccount == fromAccount && r.TransactionRef == txRef {
			return r, nil
		}
	}
	return models.Receipt{}, store.ErrNotFound
}

func (s *Store) Watch(ctx context.Context, fromAccount string) (store.Subscription, error) {
	sub := &subscription{
		account: fromAccount,
		snaps:   make(chan []models.Receipt, 16),
		errs:    make(chan error, 1),
	}
	sub.close = func() {
		s.mu.Lock()
		delete(s.watchers, sub)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.watchers[sub] = struct{}{}
	sub.deliver(s.snapshotLocked(fromAccount))
	s.mu.Unlock()
	return sub, nil
}

// Count reports how many receipts are stored, across all accounts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

func (s *Store) snapshotLocked(fromAccount string) []models.Receipt {
	var out []models.Receipt
	for _, r := range s.receipts {
		if r.FromAccount == fromAccount {
			out = append(out, r)
		}
	}
	return out
}

type subscription struct {
	account string
	snaps   chan []models.Receipt
	errs    chan error
	close   func()
	once    sync.Once
}

func (s *subscription) Snapshots() <-chan []models.Receipt { return s.snaps }
func (s *subscription) Err() <-chan error                  { return s.errs }

func (s *subscription) Close() {
	s.once.Do(s.close)
}

// deliver never blocks the writer. When the buffer is full the oldest queued
// snapshot is evicted, so a slow watcher always ends up on the newest full
// result set rather than a stale one.
func (s *subscription) deliver(snap []models.Receipt) {
	for {
		select {
		case s.snaps <- snap:
			return
		default:
		}
		select {
		case <-s.snaps:
		default:
		}
	}
}
