package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"OneTapTip/internal/events"
	"OneTapTip/internal/models"
	"OneTapTip/internal/store/memory"
)

type fakeNetwork struct {
	mu           sync.Mutex
	submitRef    string
	submitErr    error
	confirmErr   error
	submitCalls  int
	confirmCalls int
}

func (f *fakeNetwork) GetBalance(ctx context.Context, account string) (uint64, error) {
	return 0, errors.New("not used")
}

func (f *fakeNetwork) SubmitTransfer(ctx context.Context, from, to string, lamports uint64, note string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitRef, nil
}

func (f *fakeNetwork) AwaitConfirmation(ctx context.Context, txRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	return f.confirmErr
}

type fakeBalance struct {
	mu        sync.Mutex
	snap      models.BalanceSnapshot
	refreshes int
}

func (f *fakeBalance) Latest() models.BalanceSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeBalance) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeBalance) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func known(value string) models.BalanceSnapshot {
	return models.BalanceSnapshot{
		Value:      decimal.RequireFromString(value),
		Known:      true,
		ObservedAt: time.Now(),
	}
}

func newTestPipeline(net *fakeNetwork, bal *fakeBalance) (*Pipeline, *memory.Store) {
	receipts := memory.NewStore()
	p := New(net, receipts, bal, time.Second, events.NewBus(), zap.NewNop())
	return p, receipts
}

func testRecipient() string {
	return solana.NewWallet().PublicKey().String()
}

func request(amount string) models.TransferRequest {
	return models.TransferRequest{
		Recipient: testRecipient(),
		Amount:    decimal.RequireFromString(amount),
		Note:      "thanks for the coffee",
	}
}

func TestSubmitSettles(t *testing.T) {
	net := &fakeNetwork{submitRef: "sig-1"}
	bal := &fakeBalance{snap: known("1")}
	p, receipts := newTestPipeline(net, bal)

	req := request("0.5")
	got, err := p.Submit(context.Background(), "ACC1", req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.TransactionRef != "sig-1" {
		t.Errorf("TransactionRef = %q, want sig-1", got.TransactionRef)
	}
	if got.FromAccount != "ACC1" || got.ToAccount != req.Recipient {
		t.Errorf("receipt endpoints = %q -> %q", got.FromAccount, got.ToAccount)
	}
	if !got.Amount.Equal(req.Amount) {
		t.Errorf("Amount = %s, want %s", got.Amount, req.Amount)
	}
	if got.RecordedAt.IsZero() {
		t.Error("RecordedAt not set")
	}
	if receipts.Count() != 1 {
		t.Errorf("stored receipts = %d, want 1", receipts.Count())
	}
	if bal.refreshCount() != 1 {
		t.Errorf("balance refreshes = %d, want 1", bal.refreshCount())
	}
}

func TestSubmitNotConnected(t *testing.T) {
	net := &fakeNetwork{submitRef: "sig-1"}
	p, _ := newTestPipeline(net, &fakeBalance{})

	_, err := p.Submit(context.Background(), "", request("0.5"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if net.submitCalls != 0 {
		t.Error("submitted despite no connected account")
	}
}

func TestSubmitInvalidRecipient(t *testing.T) {
	net := &fakeNetwork{submitRef: "sig-1"}
	p, _ := newTestPipeline(net, &fakeBalance{})

	req := models.TransferRequest{Recipient: "not-an-address", Amount: decimal.NewFromInt(1)}
	_, err := p.Submit(context.Background(), "ACC1", req)
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("err = %v, want ErrInvalidRecipient", err)
	}
	if net.submitCalls != 0 {
		t.Error("submitted despite invalid recipient")
	}
}

func TestSubmitInvalidAmount(t *testing.T) {
	p, _ := newTestPipeline(&fakeNetwork{}, &fakeBalance{})

	for _, amount := range []string{"0", "-0.5"} {
		req := models.TransferRequest{Recipient: testRecipient(), Amount: decimal.RequireFromString(amount)}
		if _, err := p.Submit(context.Background(), "ACC1", req); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %s: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestSubmitNoteTooLong(t *testing.T) {
	p, _ := newTestPipeline(&fakeNetwork{}, &fakeBalance{})

	req := request("0.5")
	req.Note = string(make([]byte, maxNoteBytes+1))
	if _, err := p.Submit(context.Background(), "ACC1", req); !errors.Is(err, ErrNoteTooLong) {
		t.Fatalf("err = %v, want ErrNoteTooLong", err)
	}
}

func TestSubmitInsufficientBalanceFailsFast(t *testing.T) {
	net := &fakeNetwork{submitRef: "sig-1"}
	bal := &fakeBalance{snap: known("0.1")}
	p, receipts := newTestPipeline(net, bal)

	_, err := p.Submit(context.Background(), "ACC1", request("0.5"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if net.submitCalls != 0 || net.confirmCalls != 0 {
		t.Error("touched the network despite failing validation")
	}
	if receipts.Count() != 0 {
		t.Error("wrote a receipt for an unsubmitted transfer")
	}
}

func TestSubmitSkipsBalanceCheckWhenUnknown(t *testing.T) {
	// A stale or missing snapshot must not block the transfer; the ledger is
	// the final authority on funds.
	net := &fakeNetwork{submitRef: "sig-1"}
	p, _ := newTestPipeline(net, &fakeBalance{})

	if _, err := p.Submit(context.Background(), "ACC1", request("100")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if net.submitCalls != 1 {
		t.Errorf("submitCalls = %d, want 1", net.submitCalls)
	}
}

func TestSubmitRejected(t *testing.T) {
	net := &fakeNetwork{submitErr: errors.New("blockhash not found")}
	p, receipts := newTestPipeline(net, &fakeBalance{snap: known("1")})

	_, err := p.Submit(context.Background(), "ACC1", request("0.5"))
	if !errors.Is(err, ErrSubmissionRejected) {
		t.Fatalf("err = %v, want ErrSubmissionRejected", err)
	}
	if net.confirmCalls != 0 {
		t.Error("awaited confirmation for a rejected submission")
	}
	if receipts.Count() != 0 {
		t.Error("wrote a receipt for a rejected submission")
	}
}

func TestSubmitConfirmationFailed(t *testing.T) {
	net := &fakeNetwork{submitRef: "sig-1", confirmErr: errors.New("transaction failed on chain")}
	p, receipts := newTestPipeline(net, &fakeBalance{snap: known("1")})

	_, err := p.Submit(context.Background(), "ACC1", request("0.5"))
	if !errors.Is(err, ErrConfirmationFailed) {
		t.Fatalf("err = %v, want ErrConfirmationFailed", err)
	}
	if errors.Is(err, ErrConfirmationTimeout) {
		t.Error("a definite failure must not read as a timeout")
	}
	if receipts.Count() != 0 {
		t.Error("wrote a receipt for an unconfirmed transfer")
	}
}

func TestSubmitConfirmationTimeout(t *testing.T) {
	net := &fakeNetwork{submitRef: "sig-1", confirmErr: context.DeadlineExceeded}
	p, receipts := newTestPipeline(net, &fakeBalance{snap: known("1")})

	_, err := p.Submit(context.Background(), "ACC1", request("0.5"))
	if !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("err = %v, want ErrConfirmationTimeout", err)
	}

	var cerr *ConfirmError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %T, want *ConfirmError", err)
	}
	if cerr.TransactionRef != "sig-1" {
		t.Errorf("TransactionRef = %q, want sig-1", cerr.TransactionRef)
	}
	if receipts.Count() != 0 {
		t.Error("wrote a receipt for a transfer with unknown outcome")
	}
}

func TestSubmitConfirmationCanceledIsUnknownOutcome(t *testing.T) {
	// A canceled wait (e.g. the caller went away mid-confirmation) stops the
	// watching, not the transfer. It must read as unknown outcome, never as a
	// definite failure a caller might resubmit after.
	net := &fakeNetwork{submitRef: "sig-1", confirmErr: context.Canceled}
	p, receipts := newTestPipeline(net, &fakeBalance{snap: known("1")})

	_, err := p.Submit(context.Background(), "ACC1", request("0.5"))
	if !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("err = %v, want ErrConfirmationTimeout", err)
	}
	if errors.Is(err, ErrConfirmationFailed) {
		t.Error("a canceled wait must not read as a definite failure")
	}

	var cerr *ConfirmError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %T, want *ConfirmError", err)
	}
	if cerr.TransactionRef != "sig-1" {
		t.Errorf("TransactionRef = %q, want sig-1", cerr.TransactionRef)
	}
	if receipts.Count() != 0 {
		t.Error("wrote a receipt for a transfer with unknown outcome")
	}
}

// flakyStore fails the first n Adds, then defers to the in-memory store.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) Add(ctx context.Context, r models.Receipt) (models.Receipt, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return models.Receipt{}, errors.New("store unreachable")
	}
	return s.Store.Add(ctx, r)
}

func TestPersistRetryIsIdempotent(t *testing.T) {
	net := &fakeNetwork{submitRef: "sig-1"}
	receipts := &flakyStore{Store: memory.NewStore(), failures: 1}
	p := New(net, receipts, &fakeBalance{snap: known("1")}, time.Second, events.NewBus(), zap.NewNop())

	req := request("0.5")
	_, err := p.Submit(context.Background(), "ACC1", req)
	if !errors.Is(err, ErrReceiptPersistFailed) {
		t.Fatalf("err = %v, want ErrReceiptPersistFailed", err)
	}

	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %T, want *PersistError", err)
	}
	if perr.TransactionRef != "sig-1" {
		t.Fatalf("TransactionRef = %q, want sig-1", perr.TransactionRef)
	}

	// The transfer settled on the ledger, so the caller retries the receipt
	// write with the carried ref, not the whole submission.
	first, err := p.Persist(context.Background(), "ACC1", req.Recipient, req.Amount, req.Note, perr.TransactionRef)
	if err != nil {
		t.Fatalf("Persist retry: %v", err)
	}
	second, err := p.Persist(context.Background(), "ACC1", req.Recipient, req.Amount, req.Note, perr.TransactionRef)
	if err != nil {
		t.Fatalf("Persist again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("retry created a duplicate receipt: %q vs %q", first.ID, second.ID)
	}
	if receipts.Count() != 1 {
		t.Errorf("stored receipts = %d, want 1", receipts.Count())
	}
	if net.submitCalls != 1 {
		t.Errorf("submitCalls = %d, retry must not resubmit value", net.submitCalls)
	}
}
