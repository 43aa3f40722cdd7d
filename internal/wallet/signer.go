package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var ErrSigningDeclined = errors.New("signing declined")

// Signer is the signing collaborator: it presents a built transaction to the
// account holder and returns the broadcast signature, or a rejection.
type Signer interface {
	Account() solana.PublicKey
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// LocalSigner signs with a keypair held in config and broadcasts over RPC.
type LocalSigner struct {
	key    solana.PrivateKey
	client *rpc.Client
}

// NewLocalSigner parses a base58 secret key. Only base58 format is supported.
func NewLocalSigner(secretBase58 string, client *rpc.Client) (*LocalSigner, error) {
	if secretBase58 == "" {
		return nil, errors.New("payer secret is empty")
	}
	key, err := solana.PrivateKeyFromBase58(secretBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payer secret as base58: %w", err)
	}
	return &LocalSigner{key: key, client: client}, nil
}

func (s *LocalSigner) Account() solana.PublicKey {
	return s.key.PublicKey()
}

// SignAndSend signs every signature slot owned by the local key and broadcasts
// the serialized transaction. Any failure counts as a rejection: the caller
// must not assume the transaction reached the ledger.
func (s *LocalSigner) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	owned := s.key.PublicKey()
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(owned) {
			return &s.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrSigningDeclined, err)
	}

	enc, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: serialize: %v", ErrSigningDeclined, err)
	}

	sig, err := s.client.SendRawTransaction(ctx, enc)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: broadcast: %v", ErrSigningDeclined, err)
	}
	return sig, nil
}
