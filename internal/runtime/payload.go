package runtime

import (
	"net/url"
	"strings"

	"github.com/pyanoxyz/agent-generator/internal/config"
	"github.com/pyanoxyz/agent-generator/internal/models"
)

// DeployRequest is the body POSTed to the runtime's /deploy endpoint
type DeployRequest struct {
	ID        string            `json:"id"`
	Character string            `json:"character"`
	Knowledge map[string]string `json:"knowledge"`
	Env       map[string]string `json:"env"`
}

type idRequest struct {
	ID string `json:"id"`
}

// NewDeployRequest builds the runtime payload for a stored agent
func NewDeployRequest(agent *models.Agent, provider config.ModelProviderConfig) DeployRequest {
	knowledge := make(map[string]string, len(agent.KnowledgeFiles))
	for _, kf := range agent.KnowledgeFiles {
		knowledge[kf.Filename] = StorageLocator(kf.StorageURL)
	}
	return DeployRequest{
		ID:        agent.AgentID,
		Character: StorageLocator(agent.CharacterURL),
		Knowledge: knowledge,
		Env:       BuildEnv(provider, agent.Client),
	}
}

// BuildEnv synthesizes the agent's environment from the shared model-provider
// settings and the agent's client credentials.
func BuildEnv(provider config.ModelProviderConfig, clients *models.ClientConfig) map[string]string {
	name := strings.ToUpper(strings.ReplaceAll(provider.Name, "-", "_"))
	env := map[string]string{
		name + "_API_KEY":           provider.APIKey,
		"SMALL_" + name + "_MODEL":  provider.SmallModel,
		"MEDIUM_" + name + "_MODEL": provider.MediumModel,
		"LARGE_" + name + "_MODEL":  provider.LargeModel,
	}

	if clients == nil {
		return env
	}

	if tw := clients.Twitter; tw != nil {
		env["TWITTER_USERNAME"] = tw.Username
		env["TWITTER_PASSWORD"] = tw.Password
		env["TWITTER_EMAIL"] = tw.Email
	}
	if dc := clients.Discord; dc != nil {
		env["DISCORD_APPLICATION_ID"] = dc.ApplicationID
		env["DISCORD_API_TOKEN"] = dc.APIToken
		if dc.VoiceChannelID != nil {
			env["DISCORD_VOICE_CHANNEL_ID"] = *dc.VoiceChannelID
		}
	}
	if tg := clients.Telegram; tg != nil {
		env["TELEGRAM_BOT_TOKEN"] = tg.BotToken
	}
	return env
}

// StorageLocator rewrites an S3 virtual-hosted URL
// (https://bucket.s3[.region].amazonaws.com/key) into s3://bucket/key.
// Any other URL is returned unchanged.
func StorageLocator(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" {
		return rawURL
	}

	host := u.Hostname()
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return rawURL
	}
	idx := strings.Index(host, ".s3.")
	if idx <= 0 {
		idx = strings.Index(host, ".s3-")
	}
	if idx <= 0 {
		return rawURL
	}

	bucket := host[:idx]
	key := strings.TrimPrefix(u.Path, "/")
	return "s3://" + bucket + "/" + key
}
