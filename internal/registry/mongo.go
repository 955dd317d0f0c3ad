package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pyanoxyz/agent-generator/internal/crypto"
	"github.com/pyanoxyz/agent-generator/internal/database"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

// agentRecord is the MongoDB document for an agent
type agentRecord struct {
	ID                   primitive.ObjectID        `bson:"_id,omitempty"`
	AgentID              string                    `bson:"agentId"`
	OwnerAddress         string                    `bson:"ownerAddress"`
	Character            bson.M                    `bson:"character"`
	CharacterContentHash string                    `bson:"characterContentHash"`
	CharacterURL         string                    `bson:"characterStorageUrl"`
	KnowledgeFiles       []models.KnowledgeFileRef `bson:"knowledgeFiles"`
	ClientConfig         string                    `bson:"clientConfig,omitempty"`
	Status               models.AgentStatus        `bson:"status"`
	Version              string                    `bson:"version"`
	CreatedAt            time.Time                 `bson:"createdAt"`
	UpdatedAt            time.Time                 `bson:"updatedAt"`
}

// MongoStore implements Store on MongoDB
type MongoStore struct {
	db     *database.MongoDB
	agents *mongo.Collection
	users  *mongo.Collection
	codec  credentialCodec
}

// NewMongoStore creates a registry on an initialized MongoDB connection.
// enc may be nil, in which case credentials are stored unencrypted.
func NewMongoStore(db *database.MongoDB, enc *crypto.EncryptionService) *MongoStore {
	return &MongoStore{
		db:     db,
		agents: db.Collection(database.CollectionAgents),
		users:  db.Collection(database.CollectionUsers),
		codec:  credentialCodec{enc: enc},
	}
}

func (s *MongoStore) toRecord(agent *models.Agent) (*agentRecord, error) {
	clientConfig, err := s.codec.encode(agent.OwnerAddress, agent.Client)
	if err != nil {
		return nil, err
	}
	knowledge := agent.KnowledgeFiles
	if knowledge == nil {
		knowledge = []models.KnowledgeFileRef{}
	}
	return &agentRecord{
		AgentID:              agent.AgentID,
		OwnerAddress:         agent.OwnerAddress,
		Character:            bson.M(agent.Character),
		CharacterContentHash: agent.CharacterContentHash,
		CharacterURL:         agent.CharacterURL,
		KnowledgeFiles:       knowledge,
		ClientConfig:         clientConfig,
		Status:               agent.Status,
		Version:              agent.Version,
		CreatedAt:            agent.CreatedAt,
		UpdatedAt:            agent.UpdatedAt,
	}, nil
}

func (s *MongoStore) toModel(rec *agentRecord) (*models.Agent, error) {
	client, err := s.codec.decode(rec.OwnerAddress, rec.ClientConfig)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", rec.AgentID, err)
	}
	knowledge := rec.KnowledgeFiles
	if knowledge == nil {
		knowledge = []models.KnowledgeFileRef{}
	}
	return &models.Agent{
		AgentID:              rec.AgentID,
		OwnerAddress:         rec.OwnerAddress,
		Character:            map[string]interface{}(rec.Character),
		CharacterContentHash: rec.CharacterContentHash,
		CharacterURL:         rec.CharacterURL,
		KnowledgeFiles:       knowledge,
		Client:               client,
		Status:               rec.Status,
		Version:              rec.Version,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.Agent, error) {
	var rec agentRecord
	if err := s.agents.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find agent: %w", err)
	}
	return s.toModel(&rec)
}

func (s *MongoStore) FindByOwnerAndHash(ctx context.Context, owner, hash string) (*models.Agent, error) {
	return s.findOne(ctx, bson.M{"ownerAddress": owner, "characterContentHash": hash})
}

func (s *MongoStore) FindByID(ctx context.Context, agentID string) (*models.Agent, error) {
	return s.findOne(ctx, bson.M{"agentId": agentID})
}

// UpsertOnDeploy writes the agent keyed by agentId; createdAt is kept from the first write
func (s *MongoStore) UpsertOnDeploy(ctx context.Context, agent *models.Agent) error {
	rec, err := s.toRecord(agent)
	if err != nil {
		return err
	}

	set := bson.M{
		"ownerAddress":         rec.OwnerAddress,
		"character":            rec.Character,
		"characterContentHash": rec.CharacterContentHash,
		"characterStorageUrl":  rec.CharacterURL,
		"knowledgeFiles":       rec.KnowledgeFiles,
		"clientConfig":         rec.ClientConfig,
		"status":               rec.Status,
		"version":              rec.Version,
		"updatedAt":            rec.UpdatedAt,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": rec.CreatedAt},
	}

	_, err = s.agents.UpdateOne(ctx, bson.M{"agentId": rec.AgentID}, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

func (s *MongoStore) ListByOwner(ctx context.Context, owner string) ([]*models.Agent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.agents.Find(ctx, bson.M{"ownerAddress": owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer cursor.Close(ctx)

	var records []agentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}

	agents := make([]*models.Agent, 0, len(records))
	for i := range records {
		agent, err := s.toModel(&records[i])
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func (s *MongoStore) SetStatus(ctx context.Context, agentID string, status models.AgentStatus) error {
	result, err := s.agents.UpdateOne(ctx,
		bson.M{"agentId": agentID},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CountRunning(ctx context.Context, owner string) (int, error) {
	count, err := s.agents.CountDocuments(ctx, bson.M{"ownerAddress": owner, "status": models.AgentStatusRunning})
	if err != nil {
		return 0, fmt.Errorf("failed to count running agents: %w", err)
	}
	return int(count), nil
}

func (s *MongoStore) Delete(ctx context.Context, agentID string) error {
	result, err := s.agents.DeleteOne(ctx, bson.M{"agentId": agentID})
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UpsertUser(ctx context.Context, address string) (*models.User, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"lastVerifiedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user models.User
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"address": address}, update, opts).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) FindUser(ctx context.Context, address string) (*models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"address": address}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
