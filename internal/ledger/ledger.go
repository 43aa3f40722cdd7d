package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"OneTapTip/internal/wallet"
)

var (
	ErrInvalidAccount = errors.New("invalid account address")
	// ErrTxFailed means the ledger reported the transaction as executed and
	// failed: a definite non-transfer, unlike a confirmation timeout.
	ErrTxFailed = errors.New("transaction failed on ledger")
)

// Network is the ledger collaborator: balance reads, transfer submission
// (which includes signing) and the confirmation wait. All amounts are in the
// native base unit.
type Network interface {
	GetBalance(ctx context.Context, account string) (uint64, error)
	SubmitTransfer(ctx context.Context, from, to string, lamports uint64, note string) (string, error)
	AwaitConfirmation(ctx context.Context, txRef string) error
}

var (
	systemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	memoProgramID   = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

// Client talks to a Solana cluster over RPC, with an optional WebSocket
// connection used for the confirmation wait.
type Client struct {
	rpc    *rpc.Client
	ws     *ws.Client
	signer wallet.Signer
	log    *zap.Logger
}

func NewClient(rpcClient *rpc.Client, wsClient *ws.Client, signer wallet.Signer, log *zap.Logger) *Client {
	return &Client{rpc: rpcClient, ws: wsClient, signer: signer, log: log}
}

func (c *Client) GetBalance(ctx context.Context, account string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAccount, account)
	}
	out, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

// SubmitTransfer builds a single native-transfer instruction (plus a memo
// instruction when a note is attached), hands the transaction to the signing
// collaborator and returns the broadcast signature. The from account must be
// the signer's account.
func (c *Client) SubmitTransfer(ctx context.Context, from, to string, lamports uint64, note string) (string, error) {
	fromPubkey, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAccount, from)
	}
	toPubkey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAccount, to)
	}
	if !fromPubkey.Equals(c.signer.Account()) {
		return "", fmt.Errorf("%w: %s is not the signing account", ErrInvalidAccount, from)
	}

	bh, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		// Finalized can lag on congested RPC nodes, fall back to Confirmed.
		bh, err = c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return "", fmt.Errorf("failed to get latest blockhash: %w", err)
		}
	}

	instructions := []solana.Instruction{transferInstruction(fromPubkey, toPubkey, lamports)}
	if note != "" {
		instructions = append(instructions, memoInstruction(note))
	}

	tx, err := solana.NewTransaction(
		instructions,
		bh.Value.Blockhash,
		solana.TransactionPayer(fromPubkey),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	sig, err := c.signer.SignAndSend(ctx, tx)
	if err != nil {
		return "", err
	}
	c.log.Info("transfer broadcast",
		zap.String("tx", sig.String()),
		zap.Uint64("lamports", lamports),
	)
	return sig.String(), nil
}

// AwaitConfirmation blocks until the transaction reaches the confirmed
// commitment level. A ledger-reported execution error surfaces as ErrTxFailed;
// a context deadline passes through so the caller can tell unknown-outcome
// apart from known-failure.
func (c *Client) AwaitConfirmation(ctx context.Context, txRef string) error {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return fmt.Errorf("bad transaction signature %q: %w", txRef, err)
	}
	if c.ws != nil {
		return c.awaitViaSubscription(ctx, sig)
	}
	return c.awaitViaPolling(ctx, sig)
}

func (c *Client) awaitViaSubscription(ctx context.Context, sig solana.Signature) error {
	sub, err := c.ws.SignatureSubscribe(sig, rpc.CommitmentConfirmed)
	if err != nil {
		// The subscription is an optimization only; fall back to polling.
		c.log.Warn("signature subscribe failed, polling instead", zap.Error(err))
		return c.awaitViaPolling(ctx, sig)
	}
	defer sub.Unsubscribe()

	res, err := sub.Recv(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if res != nil && res.Value.Err != nil {
		return fmt.Errorf("%w: %v", ErrTxFailed, res.Value.Err)
	}
	return nil
}

func (c *Client) awaitViaPolling(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		statuses, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("signature status query failed", zap.Error(err))
			continue
		}
		if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
			continue // not yet visible to this node
		}
		status := statuses.Value[0]
		if status.Err != nil {
			return fmt.Errorf("%w: %v", ErrTxFailed, status.Err)
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return nil
		}
	}
}

// transferInstruction builds a SystemProgram transfer.
// Instruction layout: discriminator 2 (Transfer) as uint32 LE, then the
// lamports as uint64 LE.
func transferInstruction(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	accounts := solana.AccountMetaSlice{
		{PublicKey: from, IsSigner: true, IsWritable: true},
		{PublicKey: to, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(systemProgramID, accounts, data)
}

// memoInstruction attaches the note to the transaction via the Memo program.
func memoInstruction(note string) solana.Instruction {
	return solana.NewInstruction(memoProgramID, solana.AccountMetaSlice{}, []byte(note))
}
