// Package mongo stores bills as documents in a MongoDB collection.
package mongo

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

const collectionName = "bills"

var _ store.Repository = (*Store)(nil)

type Store struct {
	client *mongo.Client
	bills  *mongo.Collection
	now    func() time.Time
}

// New connects to uri, verifies the connection and ensures the date index.
func New(ctx context.Context, uri string, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerSelectionTimeout(6 * time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(store.ErrUnavailable, err.Error())
	}

	s := &Store{
		client: client,
		bills:  client.Database(database).Collection(collectionName),
		// BSON datetimes carry milliseconds.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}

	_, err = s.bills.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		slog.Warn("mongo index creation failed", "collection", collectionName, "error", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}
	return nil
}

// MissingID returns a well-formed ObjectID hex that no stored bill uses.
func (s *Store) MissingID() string {
	return bson.NewObjectID().Hex()
}

func (s *Store) ListBills(ctx context.Context) ([]domain.Bill, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := s.bills.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, classify(err, "list bills")
	}
	defer cursor.Close(ctx)

	var docs []billDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err, "decode bills")
	}

	bills := make([]domain.Bill, 0, len(docs))
	for _, doc := range docs {
		bills = append(bills, fromDocument(doc))
	}
	return bills, nil
}

func (s *Store) GetBill(ctx context.Context, storeID string) (*domain.Bill, error) {
	oid, err := bson.ObjectIDFromHex(storeID)
	if err != nil {
		return nil, store.ErrNotFound
	}

	var doc billDocument
	err = s.bills.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "get bill")
	}

	b := fromDocument(doc)
	return &b, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	now := s.now()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	bill.Date = bill.Date.Truncate(time.Millisecond)

	doc := toDocument(bill)
	doc.ObjectID = bson.NewObjectID()
	if _, err := s.bills.InsertOne(ctx, doc); err != nil {
		return nil, classify(err, "insert bill")
	}

	bill.StoreID = doc.ObjectID.Hex()
	created := domain.CloneBill(bill)
	return &created, nil
}

func (s *Store) UpdateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	oid, err := bson.ObjectIDFromHex(bill.StoreID)
	if err != nil {
		return nil, store.ErrNotFound
	}

	bill.UpdatedAt = s.now()
	bill.Date = bill.Date.Truncate(time.Millisecond)
	doc := toDocument(bill)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "id", Value: doc.ID},
		{Key: "invoiceNumber", Value: doc.InvoiceNumber},
		{Key: "customerName", Value: doc.CustomerName},
		{Key: "items", Value: doc.Items},
		{Key: "total", Value: doc.Total},
		{Key: "date", Value: doc.Date},
		{Key: "updatedAt", Value: doc.UpdatedAt},
	}}}

	var saved billDocument
	err = s.bills.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&saved)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "update bill")
	}

	updated := fromDocument(saved)
	return &updated, nil
}

func (s *Store) DeleteBill(ctx context.Context, storeID string) error {
	oid, err := bson.ObjectIDFromHex(storeID)
	if err != nil {
		return store.ErrNotFound
	}

	res, err := s.bills.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return classify(err, "delete bill")
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func classify(err error, op string) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return errors.Wrapf(store.ErrUnavailable, "%s: %v", op, err)
	}
	return errors.Wrap(err, op)
}
