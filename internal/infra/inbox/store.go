package inbox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "broker_inbox"
	// DefaultRetention bounds how long processed message ids are remembered.
	DefaultRetention = 7 * 24 * time.Hour
)

// Store remembers broker message ids per consumer so redeliveries are dropped.
// An id is marked only once its message has been handled.
type Store struct {
	col      *mongo.Collection
	consumer string
	now      func() time.Time
}

func NewStore(db *mongo.Database, consumer string) *Store {
	return &Store{col: db.Collection(collectionName), consumer: consumer, now: time.Now}
}

// EnsureIndexes creates the uniqueness constraint and the expiry index.
func (s *Store) EnsureIndexes(ctx context.Context, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "consumer", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		},
	})
	return err
}

// Seen reports whether messageID was already marked.
func (s *Store) Seen(ctx context.Context, messageID string) (bool, error) {
	err := s.col.FindOne(ctx, inboxKey(messageID, s.consumer)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return false, nil
	default:
		return false, err
	}
}

// Mark records messageID as handled. Marking twice is not an error.
func (s *Store) Mark(ctx context.Context, messageID string) error {
	_, err := s.col.InsertOne(ctx, inboxDocument(messageID, s.consumer, s.now()))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}
	return nil
}

func inboxKey(messageID, consumer string) bson.M {
	return bson.M{"message_id": messageID, "consumer": consumer}
}

func inboxDocument(messageID, consumer string, at time.Time) bson.M {
	doc := inboxKey(messageID, consumer)
	doc["received_at"] = at.UTC()
	return doc
}
