package events

import "time"

type Kind string

const (
	KindTransferSettled    Kind = "transfer_settled"
	KindTransferFailed     Kind = "transfer_failed"
	KindBalancePollFailed  Kind = "balance_poll_failed"
	KindSubscriptionFailed Kind = "subscription_failed"
)

// Event is a core-side notification. The presentation layer (or a relay)
// consumes these; the core never drives UI side effects directly.
type Event struct {
	Kind           Kind      `json:"kind"`
	Account        string    `json:"account,omitempty"`
	TransactionRef string    `json:"txHash,omitempty"`
	Amount         string    `json:"amount,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

// Bus is a single-consumer notification channel. Publish never blocks the
// producing component; with no consumer draining, the oldest events are
// simply lost.
type Bus struct {
	ch chan Event
}

func NewBus() *Bus {
	return &Bus{ch: make(chan Event, 64)}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case b.ch <- e:
	default:
	}
}

func (b *Bus) Events() <-chan Event { return b.ch }
