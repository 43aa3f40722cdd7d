package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"OneTapTip/internal/events"
	"OneTapTip/internal/ledger"
	"OneTapTip/internal/models"
	"OneTapTip/internal/store"
)

var (
	ErrNotConnected         = errors.New("no account connected")
	ErrInvalidRecipient     = errors.New("invalid recipient address")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrNoteTooLong          = errors.New("note too long")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrSubmissionRejected   = errors.New("submission rejected")
	ErrConfirmationFailed   = errors.New("transfer failed to confirm")
	ErrConfirmationTimeout  = errors.New("confirmation timed out")
	ErrReceiptPersistFailed = errors.New("receipt persist failed")
)

// maxNoteBytes is the memo program's per-transaction budget.
const maxNoteBytes = 566

// State names one stage of a submission. Used for logging only; the contract
// is Submit's return value.
type State string

const (
	StateValidating   State = "validating"
	StateBroadcasting State = "awaiting_signature_and_broadcast"
	StateConfirming   State = "awaiting_confirmation"
	StatePersisting   State = "persisting"
	StateSettled      State = "settled"
)

// ConfirmError is a confirmation-stage failure. Timeout means the wait ended
// without a verdict (deadline expiry or caller cancellation): the outcome is
// unknown and the transaction may still confirm later, so the transaction ref
// is carried for out-of-band verification.
type ConfirmError struct {
	TransactionRef string
	Timeout        bool
	Cause          error
}

func (e *ConfirmError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("confirmation timed out for tx %s", e.TransactionRef)
	}
	return fmt.Sprintf("transfer %s failed to confirm: %v", e.TransactionRef, e.Cause)
}

func (e *ConfirmError) Is(target error) bool {
	if e.Timeout {
		return target == ErrConfirmationTimeout
	}
	return target == ErrConfirmationFailed
}

func (e *ConfirmError) Unwrap() error { return e.Cause }

// PersistError means the transfer settled on the ledger but the receipt write
// failed. The caller retries only the persistence step (Persist) with the
// carried transaction ref, never by resubmitting value.
type PersistError struct {
	TransactionRef string
	Cause          error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("receipt persist failed for tx %s: %v", e.TransactionRef, e.Cause)
}

func (e *PersistError) Is(target error) bool { return target == ErrReceiptPersistFailed }

func (e *PersistError) Unwrap() error { return e.Cause }

// BalanceSource exposes the oracle to the pipeline: the advisory pre-check
// reads Latest, the settle step triggers Refresh.
type BalanceSource interface {
	Latest() models.BalanceSnapshot
	Refresh()
}

// Pipeline runs one transfer submission end to end: validate, sign and
// broadcast, await confirmation, persist the receipt.
type Pipeline struct {
	net            ledger.Network
	store          store.ReceiptStore
	balance        BalanceSource
	confirmTimeout time.Duration
	bus            *events.Bus
	log            *zap.Logger
}

func New(net ledger.Network, receipts store.ReceiptStore, balance BalanceSource, confirmTimeout time.Duration, bus *events.Bus, log *zap.Logger) *Pipeline {
	return &Pipeline{
		net:            net,
		store:          receipts,
		balance:        balance,
		confirmTimeout: confirmTimeout,
		bus:            bus,
		log:            log,
	}
}

// Submit runs the state machine for one request. Steps are strictly
// sequential; failure at any stage returns without touching later stages, so
// a transfer that never confirmed never gets a receipt.
func (p *Pipeline) Submit(ctx context.Context, from string, req models.TransferRequest) (models.Receipt, error) {
	p.transition(StateValidating, "")
	if from == "" {
		return models.Receipt{}, ErrNotConnected
	}
	if _, err := solana.PublicKeyFromBase58(req.Recipient); err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, req.Recipient)
	}
	if len(req.Note) > maxNoteBytes {
		return models.Receipt{}, fmt.Errorf("%w: %d bytes", ErrNoteTooLong, len(req.Note))
	}
	lamports, err := ledger.ToLamports(req.Amount)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	// Advisory only: the snapshot may be stale and the ledger is the final
	// authority, but an obvious overdraft fails fast without a network call.
	if snap := p.balance.Latest(); snap.Known && req.Amount.GreaterThan(snap.Value) {
		return models.Receipt{}, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientBalance, snap.Value.String(), req.Amount.String())
	}

	p.transition(StateBroadcasting, "")
	ref, err := p.net.SubmitTransfer(ctx, from, req.Recipient, lamports, req.Note)
	if err != nil {
		p.failed(from, "", err)
		return models.Receipt{}, fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}

	p.transition(StateConfirming, ref)
	confirmCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()
	if err := p.net.AwaitConfirmation(confirmCtx, ref); err != nil {
		// Any context-driven exit (deadline or caller cancellation) means the
		// wait stopped, not the transfer: the outcome is unknown, never a
		// definite failure.
		cerr := &ConfirmError{
			TransactionRef: ref,
			Timeout: errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, context.Canceled),
			Cause: err,
		}
		p.failed(from, ref, cerr)
		return models.Receipt{}, cerr
	}

	p.transition(StatePersisting, ref)
	receipt, err := p.Persist(ctx, from, req.Recipient, req.Amount, req.Note, ref)
	if err != nil {
		p.failed(from, ref, err)
		return models.Receipt{}, err
	}

	p.transition(StateSettled, ref)
	p.balance.Refresh() // on-chain balance changed
	p.bus.Publish(events.Event{
		Kind:           events.KindTransferSettled,
		Account:        from,
		TransactionRef: ref,
		Amount:         req.Amount.String(),
	})
	return receipt, nil
}

// Persist writes the receipt for a confirmed transfer. It dedupes by
// (fromAccount, transactionRef) before inserting, so retrying after a
// transient store failure never records the same transfer twice.
func (p *Pipeline) Persist(ctx context.Context, from, to string, amount decimal.Decimal, note, txRef string) (models.Receipt, error) {
	existing, err := p.store.FindByTransactionRef(ctx, from, txRef)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Receipt{}, &PersistError{TransactionRef: txRef, Cause: err}
	}

	receipt, err := p.store.Add(ctx, models.Receipt{
		FromAccount:    from,
		ToAccount:      to,
		Amount:         amount,
		Note:           note,
		RecordedAt:     time.Now(),
		TransactionRef: txRef,
	})
	if err != nil {
		return models.Receipt{}, &PersistError{TransactionRef: txRef, Cause: err}
	}
	return receipt, nil
}

func (p *Pipeline) transition(s State, txRef string) {
	p.log.Debug("pipeline state", zap.String("state", string(s)), zap.String("tx", txRef))
}

func (p *Pipeline) failed(account, txRef string, err error) {
	p.bus.Publish(events.Event{
		Kind:           events.KindTransferFailed,
		Account:        account,
		TransactionRef: txRef,
		Reason:         err.Error(),
	})
}
