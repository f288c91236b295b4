// Package archive keeps raw webhook alerts in MongoDB for auditing.
package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AlertsCollection = "webhook_alerts"

// Alert is one archived webhook call
type Alert struct {
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
	Source     string    `bson:"source" json:"source"`
	RemoteIP   string    `bson:"remote_ip" json:"remote_ip"`
	Result     string    `bson:"result" json:"result"` // accepted, invalid
	SignalID   uint      `bson:"signal_id,omitempty" json:"signal_id,omitempty"`
	Symbol     string    `bson:"symbol,omitempty" json:"symbol,omitempty"`
	Payload    string    `bson:"payload" json:"payload"`
}

// Archive stores webhook alerts
type Archive interface {
	Record(ctx context.Context, alert Alert) error
	Recent(ctx context.Context, limit int) ([]Alert, error)
	Status() map[string]interface{}
	Close(ctx context.Context) error
}

// Noop is used when MONGODB_URI is not configured
type Noop struct{}

func (Noop) Record(context.Context, Alert) error { return nil }

func (Noop) Recent(context.Context, int) ([]Alert, error) { return []Alert{}, nil }

func (Noop) Status() map[string]interface{} {
	return map[string]interface{}{"configured": false, "connected": false}
}

func (Noop) Close(context.Context) error { return nil }

// MongoArchive writes alerts to a MongoDB collection
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.RWMutex
	lastError  string
}

// Open returns a Mongo-backed archive, or Noop when uri is empty
func Open(ctx context.Context, uri, database string) (Archive, error) {
	if uri == "" {
		log.Info().Msg("MONGODB_URI not set, alert archive disabled")
		return Noop{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection with ping
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	a := &MongoArchive{
		client:     client,
		collection: client.Database(database).Collection(AlertsCollection),
	}
	a.createIndexes(ctx)

	log.Info().Str("database", database).Msg("Connected to MongoDB alert archive")
	return a, nil
}

func (a *MongoArchive) createIndexes(ctx context.Context) {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "received_at", Value: -1}}},
		{Keys: bson.D{{Key: "symbol", Value: 1}, {Key: "received_at", Value: -1}}},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create alert archive indexes")
	}
}

// Record inserts one alert
func (a *MongoArchive) Record(ctx context.Context, alert Alert) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := a.collection.InsertOne(ctx, alert); err != nil {
		a.setError(err)
		return fmt.Errorf("failed to archive alert: %w", err)
	}
	a.setError(nil)
	return nil
}

// Recent returns the newest alerts first
func (a *MongoArchive) Recent(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := a.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		a.setError(err)
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer cursor.Close(ctx)

	alerts := []Alert{}
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}

// Status reports connection details for the admin API
func (a *MongoArchive) Status() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]interface{}{
		"configured": true,
		"connected":  a.lastError == "",
		"collection": AlertsCollection,
		"last_error": a.lastError,
	}
}

// Close disconnects from MongoDB
func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func (a *MongoArchive) setError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		a.lastError = ""
		return
	}
	a.lastError = err.Error()
}
