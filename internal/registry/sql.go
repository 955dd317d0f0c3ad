package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/pyanoxyz/agent-generator/internal/crypto"
	"github.com/pyanoxyz/agent-generator/internal/database"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

const agentColumns = `agent_id, owner_address, character_json, character_hash, character_url,
	knowledge_files, client_config, status, version, created_at, updated_at`

// SQLStore implements Store on MySQL or SQLite. JSON-valued fields are stored
// as text and timestamps as unix milliseconds.
type SQLStore struct {
	db    *database.DB
	codec credentialCodec
}

// NewSQLStore creates a registry on an initialized SQL database.
// enc may be nil, in which case credentials are stored unencrypted.
func NewSQLStore(db *database.DB, enc *crypto.EncryptionService) *SQLStore {
	return &SQLStore{db: db, codec: credentialCodec{enc: enc}}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scanAgent(row rowScanner) (*models.Agent, error) {
	var (
		agent                  models.Agent
		characterJSON          string
		knowledgeJSON          string
		clientConfig           sql.NullString
		status                 string
		createdAt, updatedAtMs int64
	)

	err := row.Scan(&agent.AgentID, &agent.OwnerAddress, &characterJSON, &agent.CharacterContentHash,
		&agent.CharacterURL, &knowledgeJSON, &clientConfig, &status, &agent.Version, &createdAt, &updatedAtMs)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(characterJSON), &agent.Character); err != nil {
		return nil, fmt.Errorf("agent %s: invalid character json: %w", agent.AgentID, err)
	}
	agent.KnowledgeFiles = []models.KnowledgeFileRef{}
	if knowledgeJSON != "" {
		if err := json.Unmarshal([]byte(knowledgeJSON), &agent.KnowledgeFiles); err != nil {
			return nil, fmt.Errorf("agent %s: invalid knowledge files: %w", agent.AgentID, err)
		}
	}
	agent.Client, err = s.codec.decode(agent.OwnerAddress, clientConfig.String)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agent.AgentID, err)
	}

	agent.Status = models.AgentStatus(status)
	agent.CreatedAt = time.UnixMilli(createdAt).UTC()
	agent.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	return &agent, nil
}

func (s *SQLStore) queryOne(ctx context.Context, where string, args ...interface{}) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE "+where, args...)
	agent, err := s.scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find agent: %w", err)
	}
	return agent, nil
}

func (s *SQLStore) FindByOwnerAndHash(ctx context.Context, owner, hash string) (*models.Agent, error) {
	return s.queryOne(ctx, "owner_address = ? AND character_hash = ?", owner, hash)
}

func (s *SQLStore) FindByID(ctx context.Context, agentID string) (*models.Agent, error) {
	return s.queryOne(ctx, "agent_id = ?", agentID)
}

// UpsertOnDeploy updates the row for AgentID or inserts it. A plain INSERT is
// used for new rows so that the (owner, hash) unique key surfaces as ErrDuplicate
// instead of silently rewriting another agent.
func (s *SQLStore) UpsertOnDeploy(ctx context.Context, agent *models.Agent) error {
	characterJSON, err := json.Marshal(agent.Character)
	if err != nil {
		return fmt.Errorf("failed to marshal character: %w", err)
	}
	knowledge := agent.KnowledgeFiles
	if knowledge == nil {
		knowledge = []models.KnowledgeFileRef{}
	}
	knowledgeJSON, err := json.Marshal(knowledge)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge files: %w", err)
	}
	clientConfig, err := s.codec.encode(agent.OwnerAddress, agent.Client)
	if err != nil {
		return err
	}
	var clientValue interface{}
	if clientConfig != "" {
		clientValue = clientConfig
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE agents SET owner_address = ?, character_json = ?, character_hash = ?,
		character_url = ?, knowledge_files = ?, client_config = ?, status = ?, version = ?, updated_at = ?
		WHERE agent_id = ?`,
		agent.OwnerAddress, string(characterJSON), agent.CharacterContentHash, agent.CharacterURL,
		string(knowledgeJSON), clientValue, string(agent.Status), agent.Version, agent.UpdatedAt.UnixMilli(),
		agent.AgentID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update agent: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		_, err = tx.ExecContext(ctx, "INSERT INTO agents ("+agentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			agent.AgentID, agent.OwnerAddress, string(characterJSON), agent.CharacterContentHash, agent.CharacterURL,
			string(knowledgeJSON), clientValue, string(agent.Status), agent.Version,
			agent.CreatedAt.UnixMilli(), agent.UpdatedAt.UnixMilli())
		if err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert agent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent: %w", err)
	}
	return nil
}

func (s *SQLStore) ListByOwner(ctx context.Context, owner string) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+agentColumns+" FROM agents WHERE owner_address = ? ORDER BY created_at ASC", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []*models.Agent{}
	for rows.Next() {
		agent, err := s.scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (s *SQLStore) SetStatus(ctx context.Context, agentID string, status models.AgentStatus) error {
	result, err := s.db.ExecContext(ctx, "UPDATE agents SET status = ?, updated_at = ? WHERE agent_id = ?",
		string(status), time.Now().UnixMilli(), agentID)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CountRunning(ctx context.Context, owner string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agents WHERE owner_address = ? AND status = ?",
		owner, string(models.AgentStatusRunning)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running agents: %w", err)
	}
	return count, nil
}

func (s *SQLStore) Delete(ctx context.Context, agentID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE agent_id = ?", agentID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) UpsertUser(ctx context.Context, address string) (*models.User, error) {
	now := time.Now().UTC()

	query := `INSERT INTO users (address, last_verified_at, created_at) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET last_verified_at = excluded.last_verified_at`
	if s.db.Dialect == database.DialectMySQL {
		query = `INSERT INTO users (address, last_verified_at, created_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE last_verified_at = VALUES(last_verified_at)`
	}

	if _, err := s.db.ExecContext(ctx, query, address, now.UnixMilli(), now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.FindUser(ctx, address)
}

func (s *SQLStore) FindUser(ctx context.Context, address string) (*models.User, error) {
	var lastVerified, created int64
	err := s.db.QueryRowContext(ctx, "SELECT last_verified_at, created_at FROM users WHERE address = ?", address).
		Scan(&lastVerified, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &models.User{
		Address:        address,
		LastVerifiedAt: time.UnixMilli(lastVerified).UTC(),
		CreatedAt:      time.UnixMilli(created).UTC(),
	}, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isDuplicateKey recognizes unique-constraint violations from both drivers
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
