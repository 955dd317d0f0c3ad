package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAgentSummaryRedactsSensitiveFields(t *testing.T) {
	agent := &Agent{
		AgentID:              "a1",
		OwnerAddress:         "0xabc",
		Character:            map[string]interface{}{"bio": []interface{}{"x"}},
		CharacterContentHash: "deadbeef",
		Client: &ClientConfig{
			Telegram: &TelegramCredentials{BotToken: "secret-token"},
		},
		Status: AgentStatusRunning,
	}

	data, err := json.Marshal(agent.Summary())
	if err != nil {
		t.Fatalf("Failed to marshal summary: %v", err)
	}
	body := string(data)

	if strings.Contains(body, "deadbeef") {
		t.Error("Summary must not contain the content hash")
	}
	if strings.Contains(body, "secret-token") {
		t.Error("Summary must not contain client credentials")
	}
	if !strings.Contains(body, `"clients":["telegram"]`) {
		t.Errorf("Expected configured client names, got %s", body)
	}
	if !strings.Contains(body, `"knowledge_files":[]`) {
		t.Errorf("Expected empty knowledge list, got %s", body)
	}
}

func TestClientConfigPlatforms(t *testing.T) {
	var nilConfig *ClientConfig
	if !nilConfig.IsEmpty() {
		t.Error("Expected nil config to be empty")
	}
	if got := nilConfig.Platforms(); len(got) != 0 {
		t.Errorf("Expected no platforms, got %v", got)
	}

	cfg := &ClientConfig{
		Twitter: &TwitterCredentials{Username: "u"},
		Discord: &DiscordCredentials{ApplicationID: "1"},
	}
	got := cfg.Platforms()
	if len(got) != 2 || got[0] != PlatformTwitter || got[1] != PlatformDiscord {
		t.Errorf("Expected [twitter discord], got %v", got)
	}
}
