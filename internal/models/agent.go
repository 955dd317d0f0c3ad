package models

import "time"

// AgentStatus is the lifecycle state of a deployed agent
type AgentStatus string

const (
	AgentStatusRunning AgentStatus = "running"
	AgentStatusStopped AgentStatus = "stopped"
)

// SchemaVersion tags every stored agent record
const SchemaVersion = "v1"

// Agent is a deployed character owned by a wallet address
type Agent struct {
	AgentID              string                 `json:"agent_id"`
	OwnerAddress         string                 `json:"owner_address"`
	Character            map[string]interface{} `json:"character"`
	CharacterContentHash string                 `json:"character_content_md5_hash"`
	CharacterURL         string                 `json:"character_url"`
	KnowledgeFiles       []KnowledgeFileRef     `json:"knowledge_files"`
	Client               *ClientConfig          `json:"client,omitempty"`
	Status               AgentStatus            `json:"status"`
	Version              string                 `json:"version"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// KnowledgeFileRef points at a normalized knowledge document in object storage
type KnowledgeFileRef struct {
	Filename    string `json:"filename" bson:"filename"`
	ContentType string `json:"content_type" bson:"contentType"`
	StorageURL  string `json:"s3_url" bson:"storageUrl"`
}

// KnowledgeFile is a knowledge document after normalization, before upload
type KnowledgeFile struct {
	Filename    string
	ContentType string
	Content     KnowledgeContent
}

// KnowledgeContent is the canonical JSON shape stored for every knowledge file
type KnowledgeContent struct {
	Documents []string `json:"documents"`
}

// AgentSummary is the listing projection of an agent. Content hash and
// client credentials are never part of it.
type AgentSummary struct {
	AgentID        string                 `json:"agent_id"`
	OwnerAddress   string                 `json:"owner_address"`
	Character      map[string]interface{} `json:"character"`
	CharacterURL   string                 `json:"character_url"`
	KnowledgeFiles []KnowledgeFileRef     `json:"knowledge_files"`
	Clients        []string               `json:"clients"`
	Status         AgentStatus            `json:"status"`
	Version        string                 `json:"version"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Summary returns the redacted listing view of the agent
func (a *Agent) Summary() AgentSummary {
	knowledge := a.KnowledgeFiles
	if knowledge == nil {
		knowledge = []KnowledgeFileRef{}
	}
	return AgentSummary{
		AgentID:        a.AgentID,
		OwnerAddress:   a.OwnerAddress,
		Character:      a.Character,
		CharacterURL:   a.CharacterURL,
		KnowledgeFiles: knowledge,
		Clients:        a.Client.Platforms(),
		Status:         a.Status,
		Version:        a.Version,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// DeployResult is returned by deploy and start
type DeployResult struct {
	AgentID        string             `json:"agent_id"`
	Character      string             `json:"character"`
	Signature      string             `json:"signature"`
	Message        string             `json:"message"`
	KnowledgeFiles []KnowledgeFileRef `json:"knowledge_files"`
}
