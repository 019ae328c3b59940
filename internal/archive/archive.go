package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	SourcePaystack = "paystack"

	KindVerify  = "verify"
	KindWebhook = "webhook"
)

// Record is a gateway payload kept verbatim for audit.
type Record struct {
	Source     string         `bson:"source" json:"source"`
	Kind       string         `bson:"kind" json:"kind"`
	Event      string         `bson:"event,omitempty" json:"event,omitempty"`
	Reference  string         `bson:"reference" json:"reference"`
	OrderID    string         `bson:"order_id,omitempty" json:"order_id,omitempty"`
	Payload    map[string]any `bson:"payload,omitempty" json:"payload,omitempty"`
	Raw        string         `bson:"raw" json:"-"`
	ReceivedAt time.Time      `bson:"received_at" json:"received_at"`
}

// NewRecord parses raw into Payload when it is a JSON object. Raw is kept
// either way.
func NewRecord(kind, event, reference, orderID string, raw []byte) Record {
	r := Record{
		Source:     SourcePaystack,
		Kind:       kind,
		Event:      event,
		Reference:  reference,
		OrderID:    orderID,
		Raw:        string(raw),
		ReceivedAt: time.Now().UTC(),
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		r.Payload = payload
	}

	return r
}

type Store interface {
	Save(ctx context.Context, r Record) error
	FindByReference(ctx context.Context, reference string) ([]Record, error)
}

type MongoStore struct {
	collection *mongo.Collection
}

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Msg("Connected to MongoDB")
	return client, nil
}

func NewMongoStore(ctx context.Context, client *mongo.Client, database, collection string) (*MongoStore, error) {
	coll := client.Database(database).Collection(collection)

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "reference", Value: 1}, {Key: "received_at", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive index: %w", err)
	}

	return &MongoStore{collection: coll}, nil
}

func (s *MongoStore) Save(ctx context.Context, r Record) error {
	if _, err := s.collection.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("failed to archive %s %s: %w", r.Kind, r.Reference, err)
	}
	return nil
}

// FindByReference returns records for reference, oldest first.
func (s *MongoStore) FindByReference(ctx context.Context, reference string) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"reference": reference}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive for %s: %w", reference, err)
	}
	defer cursor.Close(ctx)

	records := make([]Record, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode archive records for %s: %w", reference, err)
	}

	return records, nil
}

// Discard keeps nothing. Used when no document store is configured.
type Discard struct{}

func (Discard) Save(context.Context, Record) error { return nil }

func (Discard) FindByReference(context.Context, string) ([]Record, error) {
	return []Record{}, nil
}
