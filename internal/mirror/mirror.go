package mirror

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"OneTapTip/internal/events"
	"OneTapTip/internal/models"
	"OneTapTip/internal/store"
)

// Mirror maintains the live history view from the store's standing query.
// Every delivery is a full result set; the view is re-sorted client-side and
// swapped atomically, so readers never observe a partially ordered state.
type Mirror struct {
	store store.ReceiptStore
	bus   *events.Bus
	log   *zap.Logger

	mu      sync.RWMutex
	account string
	view    models.MirrorView
	gen     uint64
	cancel  context.CancelFunc
}

func New(receipts store.ReceiptStore, bus *events.Bus, log *zap.Logger) *Mirror {
	return &Mirror{store: receipts, bus: bus, log: log}
}

// Start subscribes for the account. Idempotent for the same account; a
// different account replaces the running subscription.
func (m *Mirror) Start(account string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		if m.account == account {
			return
		}
		m.cancel()
	}
	m.account = account
	m.view = nil
	m.gen++

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx, m.gen, account)
}

// Stop cancels the subscription and clears the view. A delivery already in
// flight is discarded by the generation guard, never applied.
func (m *Mirror) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.account = ""
	m.view = nil
	m.gen++
}

// View returns the current ordered view. The slice is replaced wholesale on
// updates and never mutated, so it is safe to read without copying.
func (m *Mirror) View() models.MirrorView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

func (m *Mirror) run(ctx context.Context, gen uint64, account string) {
	sub, err := m.store.Watch(ctx, account)
	if err != nil {
		m.subscriptionFailed(account, err)
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Snapshots():
			if !ok {
				// The store may close the snapshot channel with its terminal
				// error still queued; that error must not be lost.
				select {
				case err := <-sub.Err():
					m.subscriptionFailed(account, err)
				default:
				}
				return
			}
			m.apply(ctx, gen, SortReceipts(snap))
		case err := <-sub.Err():
			// No automatic resubscribe; the session decides.
			m.subscriptionFailed(account, err)
			return
		}
	}
}

func (m *Mirror) apply(ctx context.Context, gen uint64, view models.MirrorView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || ctx.Err() != nil {
		return
	}
	m.view = view
}

func (m *Mirror) subscriptionFailed(account string, err error) {
	m.log.Error("receipt subscription failed", zap.String("account", account), zap.Error(err))
	m.bus.Publish(events.Event{
		Kind:    events.KindSubscriptionFailed,
		Account: account,
		Reason:  err.Error(),
	})
}

// SortReceipts returns a copy ordered by RecordedAt descending. The standing
// query deliberately carries no store-side ordering (no composite index), so
// ordering always happens here. The sort is stable: equal timestamps keep
// arrival order.
func SortReceipts(in []models.Receipt) models.MirrorView {
	out := make(models.MirrorView, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	return out
}
