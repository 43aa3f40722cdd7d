package oracle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"OneTapTip/internal/events"
	"OneTapTip/internal/ledger"
	"OneTapTip/internal/models"
)

const queryTimeout = 10 * time.Second

// Oracle polls the ledger for the active account's spendable balance on a
// fixed interval and keeps the last known value as an immutable snapshot.
// Single writer (the poll loop), many readers via Latest.
type Oracle struct {
	net      ledger.Network
	interval time.Duration
	bus      *events.Bus
	log      *zap.Logger

	refresh chan struct{}

	mu      sync.RWMutex
	account string
	snap    models.BalanceSnapshot
	gen     uint64
	cancel  context.CancelFunc
}

func New(net ledger.Network, interval time.Duration, bus *events.Bus, log *zap.Logger) *Oracle {
	return &Oracle{
		net:      net,
		interval: interval,
		bus:      bus,
		log:      log,
		refresh:  make(chan struct{}, 1),
	}
}

// Start begins polling for the account, with one immediate query. Starting
// again for the same account is a no-op; a different account replaces the
// running loop.
func (o *Oracle) Start(account string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		if o.account == account {
			return
		}
		o.cancel()
	}
	o.account = account
	o.snap = models.BalanceSnapshot{}
	o.gen++

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	go o.loop(ctx, o.gen, account)
}

// Stop cancels polling and clears the snapshot. An in-flight query may still
// complete, but its result is discarded by the generation guard.
func (o *Oracle) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.account = ""
	o.snap = models.BalanceSnapshot{}
	o.gen++
}

// Latest returns the last known snapshot by value; it never reflects a
// partially applied update.
func (o *Oracle) Latest() models.BalanceSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

// Refresh forces a poll outside the regular interval, used after a settled
// transfer. Coalesces when one is already pending.
func (o *Oracle) Refresh() {
	select {
	case o.refresh <- struct{}{}:
	default:
	}
}

func (o *Oracle) loop(ctx context.Context, gen uint64, account string) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.poll(ctx, gen, account)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.refresh:
		}
		o.poll(ctx, gen, account)
	}
}

func (o *Oracle) poll(ctx context.Context, gen uint64, account string) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	lamports, err := o.net.GetBalance(queryCtx, account)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Stale-but-available: keep the previous snapshot and keep polling.
		o.log.Warn("balance poll failed", zap.String("account", account), zap.Error(err))
		o.bus.Publish(events.Event{
			Kind:    events.KindBalancePollFailed,
			Account: account,
			Reason:  err.Error(),
		})
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || ctx.Err() != nil {
		return // canceled while the query was in flight
	}
	o.snap = models.BalanceSnapshot{
		Value:      ledger.FromLamports(lamports),
		Known:      true,
		ObservedAt: time.Now(),
	}
}
