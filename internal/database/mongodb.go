package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultMongoDBName = "agent_generator"

// MongoDB is the registry's document database
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Collection names
const (
	CollectionUsers  = "users"
	CollectionAgents = "agents"
)

// NewMongoDB connects to uri and verifies the primary is reachable
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second).
		// Nested character documents decode as maps, not ordered key/value slices
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(extractDBName(uri))
	log.Printf("✅ [MONGO] Connected to database %s", db.Name())

	return &MongoDB{client: client, db: db}, nil
}

// extractDBName returns the path component of a MongoDB URI
// (mongodb://host:27017/agents?authSource=admin -> agents), or the default name.
func extractDBName(uri string) string {
	rest := uri
	if idx := strings.Index(rest, "://"); idx != -1 {
		rest = rest[idx+3:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return defaultMongoDBName
	}
	name := rest[slash+1:]
	if q := strings.Index(name, "?"); q != -1 {
		name = name[:q]
	}
	if name == "" {
		return defaultMongoDBName
	}
	return name
}

// registryIndexes lists the indexes Initialize ensures per collection
var registryIndexes = map[string][]mongo.IndexModel{
	CollectionAgents: {
		{Keys: bson.D{{Key: "agentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		// Authoritative dedup: a concurrent duplicate deploy fails at insert time
		{
			Keys:    bson.D{{Key: "ownerAddress", Value: 1}, {Key: "characterContentHash", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("owner_character_hash_unique"),
		},
		{Keys: bson.D{{Key: "ownerAddress", Value: 1}, {Key: "status", Value: 1}}},
	},
	CollectionUsers: {
		{Keys: bson.D{{Key: "address", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
}

// Initialize ensures the registry indexes exist. It is safe to call on every start.
func (m *MongoDB) Initialize(ctx context.Context) error {
	for collection, indexes := range registryIndexes {
		names, err := m.db.Collection(collection).Indexes().CreateMany(ctx, indexes)
		if err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", collection, err)
		}
		log.Printf("📦 [MONGO] %s indexes ready: %s", collection, strings.Join(names, ", "))
	}
	return nil
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Name returns the database name in use
func (m *MongoDB) Name() string {
	return m.db.Name()
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 [MONGO] Disconnecting")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
