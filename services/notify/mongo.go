package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"marketdata_backend/models"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB names for the alert event log
const (
	MongoDBName              = "marketdata"
	MongoAlertLogCollection  = "alert_events"
	mongoConnectTimeout      = 30 * time.Second
	mongoWriteTimeout        = 10 * time.Second
)

// AlertEvent is the durable record of one alert firing.
type AlertEvent struct {
	RuleID    uint      `bson:"rule_id"`
	OwnerID   uint      `bson:"owner_id"`
	Symbol    string    `bson:"symbol"`
	Condition string    `bson:"condition"`
	Threshold string    `bson:"threshold"`
	Message   string    `bson:"message"`
	FiredAt   time.Time `bson:"fired_at"`
}

// MongoEventLog appends every alert firing to a MongoDB collection so
// triggered alerts survive restarts and can be audited later.
type MongoEventLog struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	lastError   string
}

// NewMongoEventLog connects to MongoDB and prepares the event log. An
// empty URI disables the log without error.
func NewMongoEventLog(uri string) (*MongoEventLog, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, alert event log disabled")
		return &MongoEventLog{lastError: "MONGODB_URI not set"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(mongoConnectTimeout).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m := &MongoEventLog{
		client:      client,
		database:    client.Database(MongoDBName),
		isConnected: true,
	}

	log.Println("MongoDB alert event log connected")
	return m, nil
}

// Close disconnects from MongoDB.
func (m *MongoEventLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.isConnected = false
	return m.client.Disconnect(ctx)
}

// IsConnected reports whether the event log is usable.
func (m *MongoEventLog) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isConnected
}

// AlertTriggered appends one event document for the firing.
func (m *MongoEventLog) AlertTriggered(ctx context.Context, rule models.AlertRule) error {
	m.mu.RLock()
	connected := m.isConnected
	db := m.database
	m.mu.RUnlock()

	if !connected {
		// Disabled log is not a delivery failure.
		return nil
	}

	firedAt := time.Now().UTC()
	if rule.TriggeredAt != nil {
		firedAt = *rule.TriggeredAt
	}

	event := AlertEvent{
		RuleID:    rule.ID,
		OwnerID:   rule.OwnerID,
		Symbol:    rule.Symbol,
		Condition: string(rule.Condition),
		Threshold: rule.Threshold.String(),
		Message:   rule.Message,
		FiredAt:   firedAt,
	}

	writeCtx, cancel := context.WithTimeout(ctx, mongoWriteTimeout)
	defer cancel()

	if _, err := db.Collection(MongoAlertLogCollection).InsertOne(writeCtx, event); err != nil {
		return fmt.Errorf("insert alert event for rule %d: %w", rule.ID, err)
	}
	return nil
}
