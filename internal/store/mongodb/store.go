package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"OneTapTip/internal/models"
	"OneTapTip/internal/store"
)

const collectionName = "tips"

// receiptDoc is the stored document. Field names are the original tip
// document format; the amount is kept as a decimal string so no precision is
// lost in the store.
type receiptDoc struct {
	ID         string    `bson:"_id"`
	FromWallet string    `bson:"fromWallet"`
	ToWallet   string    `bson:"toWallet"`
	Amount     string    `bson:"amount"`
	Message    string    `bson:"message,omitempty"`
	Timestamp  time.Time `bson:"timestamp"`
	TxHash     string    `bson:"txHash"`
}

// Store keeps receipts in the "tips" collection and serves standing queries
// from change streams.
type Store struct {
	coll *mongo.Collection
	log  *zap.Logger
}

func NewStore(client *mongo.Client, database string, log *zap.Logger) *Store {
	return &Store{
		coll: client.Database(database).Collection(collectionName),
		log:  log,
	}
}

func (s *Store) Add(ctx context.Context, r models.Receipt) (models.Receipt, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	doc := receiptDoc{
		ID:         r.ID,
		FromWallet: r.FromAccount,
		ToWallet:   r.ToAccount,
		Amount:     r.Amount.String(),
		Message:    r.Note,
		Timestamp:  r.RecordedAt,
		TxHash:     r.TransactionRef,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return models.Receipt{}, fmt.Errorf("failed to insert receipt: %w", err)
	}
	return r, nil
}

func (s *Store) FindByTransactionRef(ctx context.Context, fromAccount, txRef string) (models.Receipt, error) {
	filter := bson.D{
		{Key: "fromWallet", Value: fromAccount},
		{Key: "txHash", Value: txRef},
	}
	var doc receiptDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Receipt{}, store.ErrNotFound
		}
		return models.Receipt{}, err
	}
	return doc.toReceipt()
}

// Watch opens a change stream filtered to the account and re-runs the full
// query on every event. The stream carries no ordering guarantee on the
// filtered field (no composite index required); consumers sort client-side.
func (s *Store) Watch(ctx context.Context, fromAccount string) (store.Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "fullDocument.fromWallet", Value: fromAccount},
		}}},
	}
	stream, err := s.coll.Watch(watchCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	sub := &subscription{
		snaps:  make(chan []models.Receipt, 16),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
	go s.run(watchCtx, stream, fromAccount, sub)
	return sub, nil
}

func (s *Store) run(ctx context.Context, stream *mongo.ChangeStream, fromAccount string, sub *subscription) {
	defer stream.Close(context.Background())
	defer close(sub.snaps)

	// Initial result set, then one full re-read per change event.
	if !s.deliverSnapshot(ctx, fromAccount, sub) {
		return
	}
	for stream.Next(ctx) {
		if !s.deliverSnapshot(ctx, fromAccount, sub) {
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		sub.errs <- err
	}
}

func (s *Store) deliverSnapshot(ctx context.Context, fromAccount string, sub *subscription) bool {
	snap, err := s.find(ctx, fromAccount)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		sub.errs <- err
		return false
	}
	select {
	case sub.snaps <- snap:
	case <-ctx.Done():
		return false
	}
	return true
}

func (s *Store) find(ctx context.Context, fromAccount string) ([]models.Receipt, error) {
	cursor, err := s.coll.Find(ctx, bson.D{{Key: "fromWallet", Value: fromAccount}})
	if err != nil {
		return nil, err
	}
	var docs []receiptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Receipt, 0, len(docs))
	for _, doc := range docs {
		r, err := doc.toReceipt()
		if err != nil {
			s.log.Warn("skipping malformed receipt document",
				zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (d receiptDoc) toReceipt() (models.Receipt, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("bad amount %q: %w", d.Amount, err)
	}
	return models.Receipt{
		ID:             d.ID,
		FromAccount:    d.FromWallet,
		ToAccount:      d.ToWallet,
		Amount:         amount,
		Note:           d.Message,
		RecordedAt:     d.Timestamp,
		TransactionRef: d.TxHash,
	}, nil
}

type subscription struct {
	snaps  chan []models.Receipt
	errs   chan error
	cancel context.CancelFunc
}

func (s *subscription) Snapshots() <-chan []models.Receipt { return s.snaps }
func (s *subscription) Err() <-chan error                  { return s.errs }
func (s *subscription) Close()                             { s.cancel() }
